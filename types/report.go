package types

// TokenUsage Token 用量
// Total == Own + Σ 子节点 Total，ByNode 记录每个产生消耗的节点
type TokenUsage struct {
	Own    int64            `json:"own"`
	Total  int64            `json:"total"`
	ByNode map[string]int64 `json:"by_node,omitempty"`
}

// ChildSummary 子节点摘要
type ChildSummary struct {
	Status    Status `json:"status"`
	Tokens    int64  `json:"tokens"`
	Error     string `json:"error,omitempty"`
	Escalated bool   `json:"escalated,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
}

// AppliedDecision 记录某节点实际执行的决策
type AppliedDecision struct {
	EscalationID string `json:"escalation_id"`
	Action       string `json:"action"`
	DecidedBy    string `json:"decided_by"`
	TimedOut     bool   `json:"timed_out,omitempty"`
	Final        bool   `json:"final,omitempty"`
}

// NodeReport 单个节点一次操作的报告
// 聚合完成后不再修改，跨越节点边界时按值传递
type NodeReport struct {
	NodeID         string                  `json:"node_id"`
	Level          int                     `json:"level"`
	Status         Status                  `json:"status"`
	Logs           []LogEntry              `json:"logs,omitempty"`
	Tokens         TokenUsage              `json:"tokens"`
	Result         any                     `json:"result,omitempty"`
	ChildSummaries map[string]ChildSummary `json:"child_summaries,omitempty"`
	Decisions      []AppliedDecision       `json:"decisions,omitempty"`
	Error          string                  `json:"error,omitempty"`
	Skipped        bool                    `json:"skipped,omitempty"`
}

// Summary 生成父节点使用的摘要
func (r *NodeReport) Summary() ChildSummary {
	s := ChildSummary{
		Status:  r.Status,
		Tokens:  r.Tokens.Total,
		Error:   r.Error,
		Skipped: r.Skipped,
	}
	for _, d := range r.Decisions {
		if d.EscalationID != "" {
			s.Escalated = true
			break
		}
	}
	return s
}
