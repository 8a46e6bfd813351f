package types

import "time"

// EscalationReason 升级原因
type EscalationReason string

const (
	ReasonLowConfidence      EscalationReason = "low_confidence"
	ReasonConflictingResults EscalationReason = "conflicting_results"
	ReasonUnrecoverableError EscalationReason = "unrecoverable_error"
	ReasonResourceExhaustion EscalationReason = "resource_exhaustion"
	ReasonBudgetExhaustion   EscalationReason = "budget_exhaustion"
	ReasonPolicyConcern      EscalationReason = "policy_concern"
	ReasonTimeout            EscalationReason = "timeout"
)

// Action 候选动作
// ResultStatus 为空表示执行该动作不改变节点自身状态
type Action struct {
	Name         string  `json:"name"`
	Risk         float64 `json:"risk"`
	Cost         int64   `json:"cost"`
	Description  string  `json:"description,omitempty"`
	ResultStatus Status  `json:"result_status,omitempty"`
	KeepResult   bool    `json:"keep_result"`
}

// 内置动作
var (
	ActionAccept = Action{
		Name: "accept", Risk: 0.3, ResultStatus: StatusHealthy, KeepResult: true,
		Description: "accept the candidate result",
	}
	ActionSkip = Action{
		Name: "skip", Risk: 0.1, ResultStatus: StatusDegraded,
		Description: "drop the result and continue",
	}
	ActionFlagManualReview = Action{
		Name: "flag_manual_review", Risk: 0, ResultStatus: StatusDegraded, KeepResult: true,
		Description: "keep the result and flag it for manual review",
	}
	ActionAbort = Action{
		Name: "abort", Risk: 0.5, ResultStatus: StatusUnhealthy,
		Description: "discard the subtree result",
	}
	ActionGrantBudget = Action{
		Name: "grant_budget", Risk: 0.4, KeepResult: true,
		Description: "raise the sub-budget by the requested amount",
	}
	ActionHaltSubtree = Action{
		Name: "halt_subtree", Risk: 0.1, ResultStatus: StatusDegraded, KeepResult: true,
		Description: "skip every unstarted leaf in the subtree",
	}
)

// Vote 子节点对某结果的投票
type Vote struct {
	NodeID     string  `json:"node_id"`
	Value      any     `json:"value,omitempty"`
	Confidence float64 `json:"confidence"`
	Abstain    bool    `json:"abstain,omitempty"`
}

// EscalationContext 升级上下文，Payload 对引擎不透明
type EscalationContext struct {
	Payload         any    `json:"payload,omitempty"`
	Candidate       *Vote  `json:"candidate,omitempty"`
	Votes           []Vote `json:"votes,omitempty"`
	Origin          string `json:"origin,omitempty"`
	Hops            int    `json:"hops"`
	RequestedTokens int64  `json:"requested_tokens,omitempty"`
}

// EscalationRequest 升级请求
type EscalationRequest struct {
	ID            string            `json:"id"`
	FromNode      string            `json:"from_node"`
	ToNode        string            `json:"to_node"`
	Reason        EscalationReason  `json:"reason"`
	Context       EscalationContext `json:"context"`
	Options       []Action          `json:"options"`
	DefaultAction Action            `json:"default_action"`
	TimeoutMs     int64             `json:"timeout_ms"`
	CreatedAt     time.Time         `json:"created_at"`
}

// HasOption 判断动作是否在候选集合中
func (r *EscalationRequest) HasOption(name string) bool {
	for _, o := range r.Options {
		if o.Name == name {
			return true
		}
	}
	return false
}

// DecisionResponse 决策响应
type DecisionResponse struct {
	EscalationID string            `json:"escalation_id"`
	Decision     Action            `json:"decision"`
	Reason       string            `json:"reason"`
	Conditions   map[string]string `json:"conditions,omitempty"`
	DecidedBy    string            `json:"decided_by"`
	Final        bool              `json:"final,omitempty"`
}
