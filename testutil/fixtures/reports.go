// =============================================================================
// 📦 测试数据工厂 - 最终报告
// =============================================================================
package fixtures

import (
	"fmt"
	"time"

	"github.com/BaSui01/bstflow/types"
)

// Epoch 固定的测试起始时间，便于比较排序
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Report 返回一份两个叶子各用 5 Token 的最终报告
func Report(id string, status types.Status, createdAt time.Time) *types.FinalReport {
	return &types.FinalReport{
		RequestID:     id,
		Status:        status,
		OverallResult: "ok",
		TokenUsage: types.FinalTokenUsage{
			Total:  10,
			ByNode: map[string]int64{"1_0": 5, "1_1": 5},
		},
		Logs: []types.LogEntry{
			{Level: types.LogInfo, NodeID: "1_0", Message: "done", Timestamp: createdAt, Completion: true},
		},
		EscalationTrail: []types.TrailEntry{},
		DurationMs:      12,
		Recommendation:  "no action required",
		CreatedAt:       createdAt,
	}
}

// ReportWithTrail 返回带一条逐级上升至根的升级轨迹的报告
func ReportWithTrail(id string, createdAt time.Time, hops int) *types.FinalReport {
	r := Report(id, types.StatusDegraded, createdAt)
	r.Recommendation = "review escalated decisions"
	for i := 0; i < hops; i++ {
		r.EscalationTrail = append(r.EscalationTrail, types.TrailEntry{
			EscalationID: "esc-1",
			From:         fmt.Sprintf("%d_0", i+1),
			To:           fmt.Sprintf("%d_0", i+2),
			Reason:       types.ReasonLowConfidence,
			Decision:     "flag_manual_review",
			DecidedBy:    fmt.Sprintf("%d_0", i+2),
			Final:        i == hops-1,
			Hops:         i + 1,
			TimestampMs:  createdAt.UnixMilli(),
		})
	}
	return r
}

// Series 返回 n 份按一分钟间隔递增创建的报告，ID 为 prefix-0 ... prefix-(n-1)
func Series(prefix string, n int) []*types.FinalReport {
	out := make([]*types.FinalReport, n)
	for i := range out {
		out[i] = Report(fmt.Sprintf("%s-%d", prefix, i), types.StatusHealthy, Epoch.Add(time.Duration(i)*time.Minute))
	}
	return out
}
