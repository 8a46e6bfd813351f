package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/bstflow/types"
)

// TestContext 返回 30 秒超时的上下文，测试结束时取消
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// AssertTokenConservation 断言总 Token 等于各节点 Token 之和，且没有负数
func AssertTokenConservation(t *testing.T, r *types.FinalReport) {
	t.Helper()

	var sum int64
	for id, n := range r.TokenUsage.ByNode {
		assert.GreaterOrEqual(t, n, int64(0), "node %s", id)
		sum += n
	}
	assert.Equal(t, r.TokenUsage.Total, sum, "token total vs per-node sum")
}

// AssertTrailChain 断言同一次升级的相邻记录首尾相接，且至多一条 Final
func AssertTrailChain(t *testing.T, trail []types.TrailEntry) {
	t.Helper()

	finals := make(map[string]int)
	for i, e := range trail {
		if e.Final {
			finals[e.EscalationID]++
		}
		if i > 0 && trail[i-1].EscalationID == e.EscalationID {
			assert.Equal(t, trail[i-1].To, e.From, "trail[%d] does not continue trail[%d]", i, i-1)
		}
	}
	for id, n := range finals {
		assert.LessOrEqual(t, n, 1, "escalation %s final entries", id)
	}
}

// LeafResults 取出 OverallResult 中按叶子 ID 索引的结果
func LeafResults(t *testing.T, r *types.FinalReport) map[string]any {
	t.Helper()

	results, ok := r.OverallResult.(map[string]any)
	require.True(t, ok, "overall result is %T", r.OverallResult)
	return results
}

// AssertSevereLogsKept 断言 source 中每条 ERROR/WARNING 都出现在 reduced 中
func AssertSevereLogsKept(t *testing.T, source, reduced []types.LogEntry) {
	t.Helper()

	type key struct {
		level   types.LogLevel
		node    string
		message string
	}
	kept := make(map[key]int, len(reduced))
	for _, e := range reduced {
		kept[key{e.Level, e.NodeID, e.Message}]++
	}
	for _, e := range source {
		if e.Level != types.LogError && e.Level != types.LogWarning {
			continue
		}
		k := key{e.Level, e.NodeID, e.Message}
		if !assert.Positive(t, kept[k], "dropped %s from %s: %q", e.Level, e.NodeID, e.Message) {
			continue
		}
		kept[k]--
	}
}
