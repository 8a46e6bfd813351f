package types

import "time"

// TrailEntry 升级审计轨迹中的一条记录
type TrailEntry struct {
	EscalationID string           `json:"escalation_id"`
	From         string           `json:"from"`
	To           string           `json:"to"`
	Reason       EscalationReason `json:"reason"`
	Decision     string           `json:"decision"`
	DecidedBy    string           `json:"decided_by"`
	TimedOut     bool             `json:"timed_out,omitempty"`
	Final        bool             `json:"final,omitempty"`
	Hops         int              `json:"hops"`
	TimestampMs  int64            `json:"timestamp_ms"`
}

// FinalTokenUsage 最终报告中的 Token 用量
type FinalTokenUsage struct {
	Total  int64            `json:"total"`
	ByNode map[string]int64 `json:"by_node"`
}

// FinalReport 一次分析的最终报告
type FinalReport struct {
	RequestID       string          `json:"request_id"`
	Status          Status          `json:"status"`
	OverallResult   any             `json:"overall_result"`
	TokenUsage      FinalTokenUsage `json:"token_usage"`
	Logs            []LogEntry      `json:"logs"`
	EscalationTrail []TrailEntry    `json:"escalation_trail"`
	DurationMs      int64           `json:"duration_ms"`
	Recommendation  string          `json:"recommendation"`
	CreatedAt       time.Time       `json:"created_at"`
}
