// =============================================================================
// 🍃 测试数据工厂 - 叶子处理器
// =============================================================================
package fixtures

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/bstflow/types"
)

// Constant 所有叶子返回相同结果
func Constant(result any, confidence float64, tokens int64) types.Handler {
	return func(_ context.Context, in types.Input) types.Outcome {
		return &types.Success{
			Result:     result,
			Confidence: confidence,
			TokensUsed: tokens,
			Logs: []types.LogEntry{
				{Level: types.LogInfo, NodeID: in.NodeID, Operation: "analyze", Message: "completed", Timestamp: time.Now(), Completion: true},
			},
		}
	}
}

// Scripted 按节点 ID 返回预设结果，未列出的节点交给 fallback
func Scripted(outcomes map[string]types.Outcome, fallback types.Handler) types.Handler {
	return func(ctx context.Context, in types.Input) types.Outcome {
		if o, ok := outcomes[in.NodeID]; ok {
			return o
		}
		return fallback(ctx, in)
	}
}

// Failing 返回指定类型的失败
func Failing(kind types.FailureKind, tokens int64) types.Handler {
	return func(context.Context, types.Input) types.Outcome {
		return &types.Failure{Kind: kind, Err: errors.New("fixture failure"), TokensUsed: tokens}
	}
}

// Slow 在调用 inner 前等待 d，上下文取消时返回 cancelled 失败
func Slow(d time.Duration, inner types.Handler) types.Handler {
	return func(ctx context.Context, in types.Input) types.Outcome {
		select {
		case <-time.After(d):
			return inner(ctx, in)
		case <-ctx.Done():
			return &types.Failure{Kind: types.FailureCancelled, Err: ctx.Err()}
		}
	}
}
