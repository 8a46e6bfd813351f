package leaf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/bstflow/retry"
	"github.com/BaSui01/bstflow/types"
)

// Config 叶子执行配置
type Config struct {
	Timeout      time.Duration `json:"timeout"`
	RetryCount   int           `json:"retry_count"`
	RetryBackoff time.Duration `json:"retry_backoff"`
	MaxBackoff   time.Duration `json:"max_backoff"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Timeout:      5 * time.Second,
		RetryCount:   2,
		RetryBackoff: 100 * time.Millisecond,
		MaxBackoff:   2 * time.Second,
	}
}

// Observer 观察每次尝试，nil 安全
type Observer interface {
	ObserveAttempt(nodeID string, attempt int, outcome string, tokens int64)
}

// Executor 叶子执行器
type Executor struct {
	config   Config
	observer Observer
	logger   *zap.Logger
}

// NewExecutor 创建叶子执行器
func NewExecutor(config Config, observer Observer, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		config:   config,
		observer: observer,
		logger:   logger.With(zap.String("component", "leaf_executor")),
	}
}

var errTransient = errors.New("transient failure")

// attemptResult 一次尝试的结果
type attemptResult struct {
	outcome   types.Outcome
	tokens    int64
	abandoned bool
}

// Execute 执行叶子操作
// timeout <= 0 时使用配置中的默认超时
func (e *Executor) Execute(ctx context.Context, h types.Handler, in types.Input, timeout time.Duration) types.Outcome {
	if timeout <= 0 {
		timeout = e.config.Timeout
	}
	if h == nil {
		return &types.Failure{
			Kind: types.FailureUnrecoverable,
			Err:  types.NewError(types.ErrUnrecoverable, "no handler bound").WithNode(in.NodeID),
			Logs: []types.LogEntry{types.NewLogEntry(types.LogError, in.NodeID, "no handler bound to leaf")},
		}
	}

	leafCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		spent int64
		logs  []types.LogEntry
	)

	retrier := retry.New(retry.Policy{
		MaxRetries:   in.Quality.MaxRetries(e.config.RetryCount),
		InitialDelay: e.config.RetryBackoff,
		MaxDelay:     e.config.MaxBackoff,
		Multiplier:   2.0,
		Jitter:       true,
		Retryable:    func(err error) bool { return errors.Is(err, errTransient) },
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logs = append(logs, types.NewLogEntry(types.LogWarning, in.NodeID,
				fmt.Sprintf("retrying after transient failure (attempt %d, backoff %s): %v", attempt, delay, err)))
		},
	}, e.logger)

	last, err := retry.Do(leafCtx, retrier, func(attempt int) (attemptResult, error) {
		attemptIn := in
		attemptIn.Attempt = attempt
		attemptIn.Timeout = remaining(leafCtx, timeout)

		res := e.attempt(leafCtx, h, attemptIn)
		spent += res.tokens
		if res.outcome != nil {
			logs = append(logs, normalizeLogs(res.outcome.Entries(), in.NodeID)...)
		}

		switch o := res.outcome.(type) {
		case *types.Failure:
			e.observe(in.NodeID, attempt, string(o.Kind), res.tokens)
			if o.Kind == types.FailureTransient {
				return res, fmt.Errorf("%w: %v", errTransient, o.Err)
			}
			return res, nil
		case *types.Success:
			e.observe(in.NodeID, attempt, "success", res.tokens)
		case *types.Escalate:
			e.observe(in.NodeID, attempt, "escalate", res.tokens)
		default:
			if res.abandoned {
				e.observe(in.NodeID, attempt, "abandoned", res.tokens)
				return res, leafCtx.Err()
			}
		}
		return res, nil
	})

	if leafCtx.Err() != nil {
		_, failed := last.outcome.(*types.Failure)
		if last.abandoned || err != nil || failed {
			return e.interrupted(ctx, in.NodeID, spent, logs)
		}
	}

	switch o := last.outcome.(type) {
	case *types.Success:
		out := *o
		out.TokensUsed, out.Logs = spent, logs
		return &out
	case *types.Escalate:
		out := *o
		out.TokensUsed, out.Logs = spent, logs
		return &out
	case *types.Failure:
		out := *o
		out.TokensUsed = spent
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			out.Err = types.NewError(types.ErrTransient, "retries exhausted").WithNode(in.NodeID).WithCause(o.Err)
		}
		out.Logs = append(logs, types.NewLogEntry(types.LogError, in.NodeID, "leaf failed: "+out.Error()))
		return &out
	default:
		return &types.Failure{
			Kind:       types.FailureUnrecoverable,
			Err:        types.NewError(types.ErrInternalError, "handler produced no outcome").WithNode(in.NodeID),
			TokensUsed: spent,
			Logs:       append(logs, types.NewLogEntry(types.LogError, in.NodeID, "handler produced no outcome")),
		}
	}
}

// attempt 在独立 goroutine 中调用处理器，处理器 panic 会被转换为不可恢复失败
func (e *Executor) attempt(ctx context.Context, h types.Handler, in types.Input) attemptResult {
	meter := &types.Meter{}
	in.Meter = meter

	done := make(chan types.Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("leaf handler panicked",
					zap.String("node_id", in.NodeID),
					zap.Any("panic", r),
				)
				done <- &types.Failure{
					Kind: types.FailureUnrecoverable,
					Err:  types.NewError(types.ErrUnrecoverable, fmt.Sprintf("handler panic: %v", r)).WithNode(in.NodeID),
				}
			}
		}()
		done <- h(ctx, in)
	}()

	select {
	case out := <-done:
		// 处理器可能通过返回值或 Meter 上报 Token，两者相加
		tokens := meter.Seal()
		if out == nil {
			return attemptResult{tokens: tokens}
		}
		return attemptResult{outcome: out, tokens: tokens + max(out.Tokens(), 0)}
	case <-ctx.Done():
		return attemptResult{tokens: meter.Seal(), abandoned: true}
	}
}

// interrupted 区分叶子自身超时与父节点取消
func (e *Executor) interrupted(parent context.Context, nodeID string, spent int64, logs []types.LogEntry) types.Outcome {
	if parent.Err() != nil {
		e.logger.Debug("leaf cancelled", zap.String("node_id", nodeID), zap.Int64("tokens", spent))
		return &types.Failure{
			Kind:       types.FailureCancelled,
			Err:        types.NewError(types.ErrCancelled, "cancelled by parent").WithNode(nodeID).WithCause(parent.Err()),
			TokensUsed: spent,
			Logs:       append(logs, types.NewLogEntry(types.LogWarning, nodeID, "leaf cancelled by parent")),
		}
	}
	e.logger.Warn("leaf timed out", zap.String("node_id", nodeID), zap.Int64("tokens", spent))
	return &types.Failure{
		Kind:       types.FailureTimeout,
		Err:        types.NewError(types.ErrTimeout, "leaf timed out").WithNode(nodeID),
		TokensUsed: spent,
		Logs:       append(logs, types.NewLogEntry(types.LogWarning, nodeID, "leaf timed out")),
	}
}

func (e *Executor) observe(nodeID string, attempt int, outcome string, tokens int64) {
	if e.observer != nil {
		e.observer.ObserveAttempt(nodeID, attempt, outcome, tokens)
	}
}

func remaining(ctx context.Context, fallback time.Duration) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		return time.Until(dl)
	}
	return fallback
}

// normalizeLogs 补齐处理器日志中缺失的节点、操作与时间戳
func normalizeLogs(entries []types.LogEntry, nodeID string) []types.LogEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]types.LogEntry, len(entries))
	now := time.Now()
	for i, e := range entries {
		if e.NodeID == "" {
			e.NodeID = nodeID
		}
		if e.Operation == "" {
			e.Operation = "execute"
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = now
		}
		out[i] = e
	}
	return out
}
