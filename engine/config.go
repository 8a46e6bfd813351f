package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/bstflow/budget"
	"github.com/BaSui01/bstflow/escalation"
	"github.com/BaSui01/bstflow/leaf"
	"github.com/BaSui01/bstflow/types"
)

// AlertThresholds 推算消耗相对预算的告警与降级阈值
type AlertThresholds struct {
	Warn     float64 `yaml:"warn" json:"warn" env:"WARN"`
	Throttle float64 `yaml:"throttle" json:"throttle" env:"THROTTLE"`
}

// Config 引擎配置
type Config struct {
	Levels int `yaml:"levels" json:"levels" env:"LEVELS"`
	Fanout int `yaml:"fanout" json:"fanout" env:"FANOUT"`

	LeafTimeoutMs int64 `yaml:"leaf_timeout_ms" json:"leaf_timeout_ms" env:"LEAF_TIMEOUT_MS"`
	// AggregationTimeoutMs 按层级索引（下标 0 对应层级 1），超出长度取最后一项
	AggregationTimeoutMs []int64 `yaml:"aggregation_timeout_ms" json:"aggregation_timeout_ms" env:"AGGREGATION_TIMEOUT_MS"`
	// EscalationTimeoutMs 按发送方层级索引
	EscalationTimeoutMs []int64 `yaml:"escalation_timeout_ms" json:"escalation_timeout_ms" env:"ESCALATION_TIMEOUT_MS"`
	CancelGraceMs       int64   `yaml:"cancel_grace_ms" json:"cancel_grace_ms" env:"CANCEL_GRACE_MS"`

	RetryCount     int   `yaml:"retry_count" json:"retry_count" env:"RETRY_COUNT"`
	RetryBackoffMs int64 `yaml:"retry_backoff_ms" json:"retry_backoff_ms" env:"RETRY_BACKOFF_MS"`

	TotalTokenBudget int64              `yaml:"total_token_budget" json:"total_token_budget" env:"TOTAL_TOKEN_BUDGET"`
	BudgetWeights    map[string]float64 `yaml:"budget_weights" json:"budget_weights,omitempty" env:"BUDGET_WEIGHTS"`
	AlertThresholds  AlertThresholds    `yaml:"alert_thresholds" json:"alert_thresholds" env:"ALERT_THRESHOLDS"`
	UsageAlerts      []float64          `yaml:"usage_alerts" json:"usage_alerts,omitempty" env:"USAGE_ALERTS"`

	ConfidenceThreshold  float64 `yaml:"confidence_threshold" json:"confidence_threshold" env:"CONFIDENCE_THRESHOLD"`
	MajorityRatio        float64 `yaml:"majority_ratio" json:"majority_ratio" env:"MAJORITY_RATIO"`
	ErrorEscalationRatio float64 `yaml:"error_escalation_ratio" json:"error_escalation_ratio" env:"ERROR_ESCALATION_RATIO"`
	EscalateOnTimeout    bool    `yaml:"escalate_on_timeout" json:"escalate_on_timeout" env:"ESCALATE_ON_TIMEOUT"`

	// MaxConcurrentLeaves 为 0 且设置了总预算时按 Fanout 限流
	MaxConcurrentLeaves int      `yaml:"max_concurrent_leaves" json:"max_concurrent_leaves" env:"MAX_CONCURRENT_LEAVES"`
	OptionalLeaves      []string `yaml:"optional_leaves" json:"optional_leaves,omitempty" env:"OPTIONAL_LEAVES"`
}

// DefaultConfig 返回默认配置：5 层二叉树，16 个叶子
func DefaultConfig() Config {
	return Config{
		Levels:               5,
		Fanout:               2,
		LeafTimeoutMs:        5000,
		AggregationTimeoutMs: []int64{5000, 15000, 25000, 35000, 45000},
		EscalationTimeoutMs:  []int64{5000, 10000, 15000, 20000, 30000},
		CancelGraceMs:        1000,
		RetryCount:           2,
		RetryBackoffMs:       100,
		AlertThresholds:      AlertThresholds{Warn: 1.0, Throttle: 1.2},
		UsageAlerts:          []float64{0.8, 0.9, 0.95},
		ConfidenceThreshold:  0.7,
		MajorityRatio:        0.66,
		ErrorEscalationRatio: 0.5,
	}
}

// Validate 校验配置，所有问题合并为一个错误返回
func (c Config) Validate() error {
	var errs []error
	bad := func(field, reason string) {
		errs = append(errs, &types.ConfigError{Field: field, Reason: reason})
	}

	if c.Levels < 2 {
		bad("levels", "must be at least 2")
	}
	if c.Fanout < 2 {
		bad("fanout", "must be at least 2")
	}
	if c.LeafTimeoutMs <= 0 {
		bad("leaf_timeout_ms", "must be positive")
	}
	for i, ms := range c.AggregationTimeoutMs {
		if ms <= 0 {
			bad(fmt.Sprintf("aggregation_timeout_ms[%d]", i), "must be positive")
		}
	}
	for i, ms := range c.EscalationTimeoutMs {
		if ms <= 0 {
			bad(fmt.Sprintf("escalation_timeout_ms[%d]", i), "must be positive")
		}
	}
	if c.CancelGraceMs < 0 {
		bad("cancel_grace_ms", "must not be negative")
	}
	if c.RetryCount < 0 {
		bad("retry_count", "must not be negative")
	}
	if c.RetryBackoffMs < 0 {
		bad("retry_backoff_ms", "must not be negative")
	}
	if c.TotalTokenBudget < 0 {
		bad("total_token_budget", "must not be negative")
	}
	for id, w := range c.BudgetWeights {
		if w < 0 {
			bad("budget_weights."+id, "must not be negative")
		}
	}
	if c.AlertThresholds.Warn <= 0 {
		bad("alert_thresholds.warn", "must be positive")
	}
	if c.AlertThresholds.Throttle < c.AlertThresholds.Warn {
		bad("alert_thresholds.throttle", "must not be below warn")
	}
	for i, a := range c.UsageAlerts {
		if a <= 0 || a > 1 {
			bad(fmt.Sprintf("usage_alerts[%d]", i), "must be within (0, 1]")
		}
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		bad("confidence_threshold", "must be within [0, 1]")
	}
	if c.MajorityRatio <= 0.5 || c.MajorityRatio > 1 {
		bad("majority_ratio", "must be within (0.5, 1]")
	}
	if c.ErrorEscalationRatio < 0 || c.ErrorEscalationRatio > 1 {
		bad("error_escalation_ratio", "must be within [0, 1]")
	}
	if c.MaxConcurrentLeaves < 0 {
		bad("max_concurrent_leaves", "must not be negative")
	}
	return errors.Join(errs...)
}

// LeafTimeout 叶子超时
func (c Config) LeafTimeout() time.Duration {
	return time.Duration(c.LeafTimeoutMs) * time.Millisecond
}

// AggregationTimeout 层级 level 的汇聚屏障超时
func (c Config) AggregationTimeout(level int) time.Duration {
	return escalation.Timeouts(msDurations(c.AggregationTimeoutMs)).For(level)
}

// CancelGrace 取消子节点后等待其报告的上限
func (c Config) CancelGrace() time.Duration {
	if c.CancelGraceMs <= 0 {
		return time.Second
	}
	return time.Duration(c.CancelGraceMs) * time.Millisecond
}

func (c Config) escalationTimeouts() escalation.Timeouts {
	return escalation.Timeouts(msDurations(c.EscalationTimeoutMs))
}

func (c Config) leafConfig() leaf.Config {
	backoff := time.Duration(c.RetryBackoffMs) * time.Millisecond
	return leaf.Config{
		Timeout:      c.LeafTimeout(),
		RetryCount:   c.RetryCount,
		RetryBackoff: backoff,
		MaxBackoff:   max(backoff*8, backoff),
	}
}

// leafConcurrency 返回叶子并发上限，0 表示不限
// 设置了总预算但未显式限流时按扇出限流，使降级指令能到达后续叶子
func (c Config) leafConcurrency() int {
	if c.MaxConcurrentLeaves == 0 && c.TotalTokenBudget > 0 {
		return c.Fanout
	}
	return c.MaxConcurrentLeaves
}

func (c Config) budgetConfig() budget.Config {
	return budget.Config{
		Total:       c.TotalTokenBudget,
		Weights:     c.BudgetWeights,
		Warn:        c.AlertThresholds.Warn,
		Throttle:    c.AlertThresholds.Throttle,
		UsageAlerts: c.UsageAlerts,
	}
}

func msDurations(ms []int64) []time.Duration {
	out := make([]time.Duration, len(ms))
	for i, v := range ms {
		out[i] = time.Duration(v) * time.Millisecond
	}
	return out
}
