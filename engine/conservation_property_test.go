package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/BaSui01/bstflow/types"
)

// 任意取消时刻下，报告总量等于所有叶子被接受的 Meter 增量之和
func TestProperty_TokenConservationUnderCancellation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 15
	properties := gopter.NewProperties(parameters)

	properties.Property("report total equals accepted meter adds", prop.ForAll(
		func(cancelAfterMs int, step int64) bool {
			var (
				mu       sync.Mutex
				accepted = make(map[string]int64)
			)
			handler := func(ctx context.Context, in types.Input) types.Outcome {
				tick := time.NewTicker(time.Millisecond)
				defer tick.Stop()
				for range 20 {
					if in.Meter.Add(step) {
						mu.Lock()
						accepted[in.NodeID] += step
						mu.Unlock()
					}
					select {
					case <-ctx.Done():
						return &types.Failure{Kind: types.FailureCancelled, Err: ctx.Err()}
					case <-tick.C:
					}
				}
				return &types.Success{Result: in.NodeID, Confidence: 0.9}
			}

			cfg := DefaultConfig()
			cfg.Levels = 3
			cfg.Fanout = 3
			e, err := New(cfg, handler)
			if err != nil {
				return false
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cancelAfterMs)*time.Millisecond)
			defer cancel()
			report, err := e.Analyze(ctx, Request{})
			if err != nil {
				return false
			}

			mu.Lock()
			defer mu.Unlock()
			var want int64
			for id, n := range accepted {
				want += n
				if report.TokenUsage.ByNode[id] != n {
					return false
				}
			}
			return report.TokenUsage.Total == want
		},
		gen.IntRange(1, 40),
		gen.Int64Range(1, 50),
	))

	properties.TestingRun(t)
}
