package leaf

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/bstflow/types"
)

func testConfig() Config {
	return Config{
		Timeout:      time.Second,
		RetryCount:   2,
		RetryBackoff: time.Millisecond,
		MaxBackoff:   5 * time.Millisecond,
	}
}

type recordingObserver struct {
	attempts atomic.Int32
}

func (o *recordingObserver) ObserveAttempt(string, int, string, int64) { o.attempts.Add(1) }

func TestExecutor_Success(t *testing.T) {
	obs := &recordingObserver{}
	ex := NewExecutor(testConfig(), obs, nil)
	out := ex.Execute(context.Background(), func(ctx context.Context, in types.Input) types.Outcome {
		return &types.Success{
			Result:     "ok",
			Confidence: 0.9,
			TokensUsed: 42,
			Logs:       []types.LogEntry{{Level: types.LogInfo, Message: "done"}},
		}
	}, types.Input{NodeID: "1_0"}, 0)

	s, ok := out.(*types.Success)
	require.True(t, ok)
	assert.Equal(t, "ok", s.Result)
	assert.Equal(t, int64(42), s.TokensUsed)
	require.Len(t, s.Logs, 1)
	assert.Equal(t, "1_0", s.Logs[0].NodeID)
	assert.Equal(t, "execute", s.Logs[0].Operation)
	assert.False(t, s.Logs[0].Timestamp.IsZero())
	assert.Equal(t, int32(1), obs.attempts.Load())
}

func TestExecutor_MeterTokensAreAdded(t *testing.T) {
	ex := NewExecutor(testConfig(), nil, nil)
	out := ex.Execute(context.Background(), func(ctx context.Context, in types.Input) types.Outcome {
		in.Meter.Add(10)
		return &types.Success{TokensUsed: 5}
	}, types.Input{NodeID: "1_0"}, 0)
	assert.Equal(t, int64(15), out.Tokens())
}

func TestExecutor_TransientRetriedThenSuccess(t *testing.T) {
	ex := NewExecutor(testConfig(), nil, nil)
	var calls atomic.Int32
	out := ex.Execute(context.Background(), func(ctx context.Context, in types.Input) types.Outcome {
		n := calls.Add(1)
		if n < 3 {
			return &types.Failure{Kind: types.FailureTransient, Err: errors.New("io"), TokensUsed: 7}
		}
		return &types.Success{Result: n, TokensUsed: 7}
	}, types.Input{NodeID: "1_0"}, 0)

	s, ok := out.(*types.Success)
	require.True(t, ok)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int64(21), s.TokensUsed, "tokens of every attempt are reported once")

	var warnings int
	for _, l := range s.Logs {
		if l.Level == types.LogWarning {
			warnings++
		}
	}
	assert.Equal(t, 2, warnings)
}

func TestExecutor_TransientExhausted(t *testing.T) {
	ex := NewExecutor(testConfig(), nil, nil)
	var calls atomic.Int32
	out := ex.Execute(context.Background(), func(ctx context.Context, in types.Input) types.Outcome {
		calls.Add(1)
		return &types.Failure{Kind: types.FailureTransient, Err: errors.New("io"), TokensUsed: 1}
	}, types.Input{NodeID: "1_0"}, 0)

	f, ok := out.(*types.Failure)
	require.True(t, ok)
	assert.Equal(t, types.FailureTransient, f.Kind)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int64(3), f.TokensUsed)
	assert.True(t, types.IsErrorCode(f.Err, types.ErrTransient))
}

func TestExecutor_UnrecoverableNotRetried(t *testing.T) {
	ex := NewExecutor(testConfig(), nil, nil)
	var calls atomic.Int32
	out := ex.Execute(context.Background(), func(ctx context.Context, in types.Input) types.Outcome {
		calls.Add(1)
		return &types.Failure{Kind: types.FailureUnrecoverable, Err: errors.New("bad input"), TokensUsed: 4}
	}, types.Input{NodeID: "1_0"}, 0)

	f, ok := out.(*types.Failure)
	require.True(t, ok)
	assert.Equal(t, types.FailureUnrecoverable, f.Kind)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(4), f.TokensUsed)
}

func TestExecutor_ReducedQualityLimitsRetries(t *testing.T) {
	ex := NewExecutor(testConfig(), nil, nil)
	var calls atomic.Int32
	ex.Execute(context.Background(), func(ctx context.Context, in types.Input) types.Outcome {
		calls.Add(1)
		return &types.Failure{Kind: types.FailureTransient, Err: errors.New("io")}
	}, types.Input{NodeID: "1_0", Quality: types.QualityMinimal}, 0)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecutor_Escalate(t *testing.T) {
	ex := NewExecutor(testConfig(), nil, nil)
	out := ex.Execute(context.Background(), func(ctx context.Context, in types.Input) types.Outcome {
		return &types.Escalate{Reason: types.ReasonLowConfidence, Confidence: 0.4, TokensUsed: 9}
	}, types.Input{NodeID: "1_0"}, 0)

	esc, ok := out.(*types.Escalate)
	require.True(t, ok)
	assert.Equal(t, types.ReasonLowConfidence, esc.Reason)
	assert.Equal(t, int64(9), esc.TokensUsed)
}

func TestExecutor_Timeout(t *testing.T) {
	ex := NewExecutor(testConfig(), nil, nil)
	out := ex.Execute(context.Background(), func(ctx context.Context, in types.Input) types.Outcome {
		in.Meter.Add(11)
		time.Sleep(200 * time.Millisecond)
		in.Meter.Add(1000)
		return &types.Success{TokensUsed: 1000}
	}, types.Input{NodeID: "1_0"}, 20*time.Millisecond)

	f, ok := out.(*types.Failure)
	require.True(t, ok)
	assert.Equal(t, types.FailureTimeout, f.Kind)
	assert.Equal(t, int64(11), f.TokensUsed, "only tokens metered before the deadline count")
	require.NotEmpty(t, f.Logs)
	last := f.Logs[len(f.Logs)-1]
	assert.Equal(t, types.LogWarning, last.Level)
	assert.Equal(t, "leaf timed out", last.Message)
}

func TestExecutor_CancelledByParent(t *testing.T) {
	ex := NewExecutor(testConfig(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	out := ex.Execute(ctx, func(ctx context.Context, in types.Input) types.Outcome {
		in.Meter.Add(3)
		close(started)
		<-ctx.Done()
		return &types.Failure{Kind: types.FailureCancelled, Err: ctx.Err()}
	}, types.Input{NodeID: "1_0"}, time.Second)

	f, ok := out.(*types.Failure)
	require.True(t, ok)
	assert.Equal(t, types.FailureCancelled, f.Kind)
	assert.Equal(t, int64(3), f.TokensUsed)
}

func TestExecutor_PanicRecovered(t *testing.T) {
	ex := NewExecutor(testConfig(), nil, nil)
	out := ex.Execute(context.Background(), func(ctx context.Context, in types.Input) types.Outcome {
		panic("boom")
	}, types.Input{NodeID: "1_0"}, 0)

	f, ok := out.(*types.Failure)
	require.True(t, ok)
	assert.Equal(t, types.FailureUnrecoverable, f.Kind)
	assert.Contains(t, f.Error(), "boom")
}

func TestExecutor_NilHandlerAndNilOutcome(t *testing.T) {
	ex := NewExecutor(testConfig(), nil, nil)

	out := ex.Execute(context.Background(), nil, types.Input{NodeID: "1_0"}, 0)
	f, ok := out.(*types.Failure)
	require.True(t, ok)
	assert.Equal(t, types.FailureUnrecoverable, f.Kind)

	out = ex.Execute(context.Background(), func(ctx context.Context, in types.Input) types.Outcome {
		return nil
	}, types.Input{NodeID: "1_0"}, 0)
	f, ok = out.(*types.Failure)
	require.True(t, ok)
	assert.True(t, types.IsErrorCode(f.Err, types.ErrInternalError))
}

// 每次调用恰好上报一个 Token 数，且等于各次尝试之和
func TestExecutor_TokensEqualSumOfAttempts(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		perAttempt := rapid.SliceOfN(rapid.Int64Range(0, 1000), 1, 3).Draw(t, "per_attempt")
		ex := NewExecutor(testConfig(), nil, nil)

		var calls atomic.Int32
		out := ex.Execute(context.Background(), func(ctx context.Context, in types.Input) types.Outcome {
			n := int(calls.Add(1)) - 1
			if n < len(perAttempt)-1 {
				return &types.Failure{Kind: types.FailureTransient, Err: errors.New("io"), TokensUsed: perAttempt[n]}
			}
			return &types.Success{TokensUsed: perAttempt[n]}
		}, types.Input{NodeID: "1_0"}, 0)

		var want int64
		for _, v := range perAttempt {
			want += v
		}
		if out.Tokens() != want {
			t.Fatalf("tokens = %d, want %d", out.Tokens(), want)
		}
		if _, ok := out.(*types.Success); !ok {
			t.Fatalf("expected success, got %T", out)
		}
	})
}
