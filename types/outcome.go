package types

import (
	"context"
	"sync"
	"time"
)

// Handler 叶子能力回调
// 这是领域逻辑唯一的接入点，引擎只关心返回结果的种类，不解析其内容
type Handler func(ctx context.Context, in Input) Outcome

// Input 叶子调用输入
type Input struct {
	NodeID  string        `json:"node_id"`
	Request any           `json:"request,omitempty"`
	Quality Quality       `json:"quality"`
	Attempt int           `json:"attempt"`
	Timeout time.Duration `json:"timeout"`
	Debug   bool          `json:"debug,omitempty"`

	// Meter 供处理器在执行过程中渐进上报 Token
	Meter *Meter `json:"-"`
}

// Outcome 叶子执行结果，三态标签联合：*Success / *Escalate / *Failure
// 调用方必须通过类型分支显式处理全部三种情况
type Outcome interface {
	Tokens() int64
	Entries() []LogEntry
	outcome()
}

// Success 成功结果
// Confidence 取值 [0,1]，零值表示未上报，按完全可信处理
type Success struct {
	Result     any
	Confidence float64
	TokensUsed int64
	Logs       []LogEntry
}

// Escalate 叶子主动请求上级决策
type Escalate struct {
	Reason     EscalationReason
	Result     any
	Confidence float64
	Payload    any
	Options    []Action
	Default    *Action
	TokensUsed int64
	Logs       []LogEntry
}

// FailureKind 失败类型
type FailureKind string

const (
	FailureTransient     FailureKind = "transient"
	FailureUnrecoverable FailureKind = "unrecoverable"
	FailureTimeout       FailureKind = "timeout"
	FailureCancelled     FailureKind = "cancelled"
)

// Failure 失败结果
type Failure struct {
	Kind       FailureKind
	Err        error
	TokensUsed int64
	Logs       []LogEntry
}

func (s *Success) Tokens() int64        { return s.TokensUsed }
func (s *Success) Entries() []LogEntry  { return s.Logs }
func (s *Success) outcome()             {}
func (e *Escalate) Tokens() int64       { return e.TokensUsed }
func (e *Escalate) Entries() []LogEntry { return e.Logs }
func (e *Escalate) outcome()            {}
func (f *Failure) Tokens() int64        { return f.TokensUsed }
func (f *Failure) Entries() []LogEntry  { return f.Logs }
func (f *Failure) outcome()             {}

// EffectiveConfidence 返回用于策略判断的置信度
func (s *Success) EffectiveConfidence() float64 {
	if s.Confidence <= 0 {
		return 1
	}
	return s.Confidence
}

// Error 实现 error 接口便于日志记录
func (f *Failure) Error() string {
	if f.Err != nil {
		return string(f.Kind) + ": " + f.Err.Error()
	}
	return string(f.Kind)
}

// Meter 渐进式 Token 计量器
// Seal 之后的 Add 会被拒绝，已封存的数值即为最终上报值
type Meter struct {
	mu     sync.Mutex
	n      int64
	sealed bool
}

// Add 累加 Token，已封存时返回 false
func (m *Meter) Add(n int64) bool {
	if m == nil || n <= 0 {
		return m != nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sealed {
		return false
	}
	m.n += n
	return true
}

// Value 返回当前累计值
func (m *Meter) Value() int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n
}

// Seal 封存计量器并返回最终值
func (m *Meter) Seal() int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sealed = true
	return m.n
}
