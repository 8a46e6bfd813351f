package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func fastPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:   maxRetries,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	r := New(fastPolicy(3), zap.NewNop())

	calls := 0
	v, err := Do(context.Background(), r, func(int) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	r := New(fastPolicy(3), zap.NewNop())

	var attempts []int
	v, err := Do(context.Background(), r, func(attempt int) (int, error) {
		attempts = append(attempts, attempt)
		if attempt < 2 {
			return attempt, errors.New("temporary")
		}
		return attempt, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, []int{0, 1, 2}, attempts)
}

func TestDo_Exhausted(t *testing.T) {
	r := New(fastPolicy(2), zap.NewNop())
	persistent := errors.New("persistent")

	calls := 0
	v, err := Do(context.Background(), r, func(attempt int) (int, error) {
		calls++
		return attempt * 10, persistent
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 20, v, "last value is returned")
	assert.ErrorIs(t, err, persistent)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	transient := errors.New("transient")
	policy := fastPolicy(5)
	policy.Retryable = func(err error) bool { return errors.Is(err, transient) }
	r := New(policy, zap.NewNop())

	fatal := errors.New("fatal")
	calls := 0
	_, err := Do(context.Background(), r, func(int) (struct{}, error) {
		calls++
		return struct{}{}, fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledDuringBackoff(t *testing.T) {
	policy := fastPolicy(5)
	policy.InitialDelay = 200 * time.Millisecond
	policy.MaxDelay = time.Second
	r := New(policy, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	calls := 0
	v, err := Do(ctx, r, func(int) (int, error) {
		calls++
		return calls, errors.New("boom")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, v)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestDo_OnRetry(t *testing.T) {
	policy := fastPolicy(2)
	var seen []int
	policy.OnRetry = func(attempt int, _ error, _ time.Duration) { seen = append(seen, attempt) }

	_, _ = Do(context.Background(), New(policy, nil), func(int) (int, error) {
		return 0, errors.New("x")
	})
	assert.Equal(t, []int{1, 2}, seen)
}

func TestRetrier_DelayGrowth(t *testing.T) {
	r := New(Policy{
		MaxRetries:   5,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     40 * time.Millisecond,
		Multiplier:   2,
	}, nil)

	assert.Equal(t, 10*time.Millisecond, r.Delay(1))
	assert.Equal(t, 20*time.Millisecond, r.Delay(2))
	assert.Equal(t, 40*time.Millisecond, r.Delay(3))
	assert.Equal(t, 40*time.Millisecond, r.Delay(6))
}

func TestNew_NormalizesPolicy(t *testing.T) {
	r := New(Policy{MaxRetries: -3, InitialDelay: time.Second, MaxDelay: time.Millisecond}, nil)
	assert.Equal(t, 1, r.Attempts())
	assert.Equal(t, time.Second, r.Delay(4), "max delay is raised to the initial delay")
}

// 抖动后的延迟始终落在 [InitialDelay, MaxDelay*1.25] 内
func TestRetrier_DelayBoundsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initial := time.Duration(rapid.IntRange(1, 1000).Draw(t, "initial")) * time.Millisecond
		maxDelay := initial * time.Duration(rapid.IntRange(1, 50).Draw(t, "factor"))
		r := New(Policy{
			MaxRetries:   10,
			InitialDelay: initial,
			MaxDelay:     maxDelay,
			Multiplier:   rapid.Float64Range(1, 4).Draw(t, "multiplier"),
			Jitter:       true,
		}, nil)

		d := r.Delay(rapid.IntRange(1, 10).Draw(t, "attempt"))
		if d < initial || float64(d) > float64(maxDelay)*1.25+1 {
			t.Fatalf("delay %s outside [%s, %s*1.25]", d, initial, maxDelay)
		}
	})
}
