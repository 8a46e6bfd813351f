package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy 指数退避策略
type Policy struct {
	// MaxRetries 首次尝试之外的最大重试次数，0 表示不重试
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter 在退避时间上叠加 ±25% 抖动
	Jitter bool
	// Retryable 为 nil 时所有错误均可重试
	Retryable func(err error) bool
	// OnRetry 在每次退避开始前调用，attempt 为即将执行的尝试序号
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy 返回默认策略
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   2,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retrier 按 Policy 执行退避重试
type Retrier struct {
	policy Policy
	logger *zap.Logger
}

// New 创建重试器，非法参数回退为默认值
func New(policy Policy, logger *zap.Logger) *Retrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultPolicy()
	policy.MaxRetries = max(policy.MaxRetries, 0)
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = def.InitialDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = def.MaxDelay
	}
	policy.MaxDelay = max(policy.MaxDelay, policy.InitialDelay)
	if policy.Multiplier < 1.0 {
		policy.Multiplier = def.Multiplier
	}
	return &Retrier{policy: policy, logger: logger}
}

// Attempts 返回最多执行的次数
func (r *Retrier) Attempts() int { return r.policy.MaxRetries + 1 }

// Delay 第 attempt 次尝试（从 1 开始计数的重试）前的等待时间
func (r *Retrier) Delay(attempt int) time.Duration {
	p := r.policy
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	delay = min(delay, float64(p.MaxDelay))
	if p.Jitter {
		delay += (rand.Float64()*2 - 1) * delay * 0.25
	}
	return time.Duration(max(delay, float64(p.InitialDelay)))
}

func (r *Retrier) retryable(err error) bool {
	return r.policy.Retryable == nil || r.policy.Retryable(err)
}

// Do 执行 fn 直到成功、遇到不可重试错误、次数耗尽或 ctx 结束
// 无论成败都返回最后一次尝试的值，调用方据此完成 Token 记账
func Do[T any](ctx context.Context, r *Retrier, fn func(attempt int) (T, error)) (T, error) {
	var (
		last T
		err  error
	)
	for attempt := range r.Attempts() {
		if attempt > 0 {
			delay := r.Delay(attempt)
			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, err, delay)
			}
			r.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return last, fmt.Errorf("retry cancelled: %w", errors.Join(ctx.Err(), err))
			case <-timer.C:
			}
		}

		last, err = fn(attempt)
		switch {
		case err == nil:
			return last, nil
		case !r.retryable(err):
			return last, err
		case ctx.Err() != nil:
			return last, fmt.Errorf("retry cancelled: %w", errors.Join(ctx.Err(), err))
		}
	}
	return last, &ExhaustedError{Attempts: r.Attempts(), Err: err}
}

// ExhaustedError 重试次数耗尽
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }
