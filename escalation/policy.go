package escalation

import (
	"context"
	"strconv"

	"github.com/BaSui01/bstflow/types"
)

// Situation 节点裁决时可见的信息
type Situation struct {
	NodeID   string
	Level    int
	Root     bool
	Votes    []types.Vote
	Headroom int64
}

// Verdict 策略裁决结果：Resolve 为 true 时在本地裁决，否则以 Forward 原因向上转发
type Verdict struct {
	Resolve    bool
	Decision   types.Action
	Reason     string
	Conditions map[string]string
	Forward    types.EscalationReason
}

// Policy 决策策略
type Policy interface {
	Decide(ctx context.Context, s Situation, req types.EscalationRequest) Verdict
}

// PolicyFunc 函数适配器
type PolicyFunc func(ctx context.Context, s Situation, req types.EscalationRequest) Verdict

// Decide 实现 Policy
func (f PolicyFunc) Decide(ctx context.Context, s Situation, req types.EscalationRequest) Verdict {
	return f(ctx, s, req)
}

// DefaultPolicy 内置策略
//
// 非根节点：低置信度候选在其余兄弟投票一致时接受，存在分歧则以 conflicting_results 转发；
// 预算请求在余量足够时授予；其余一律转发。内部节点从不裁决冲突。
// 根节点：多数票（不低于 MajorityRatio）裁决，否则 flag_manual_review。
type DefaultPolicy struct {
	ConfidenceThreshold float64
	MajorityRatio       float64
}

// NewDefaultPolicy 创建内置策略
func NewDefaultPolicy(confidenceThreshold, majorityRatio float64) *DefaultPolicy {
	if confidenceThreshold <= 0 {
		confidenceThreshold = 0.7
	}
	if majorityRatio <= 0 {
		majorityRatio = 0.66
	}
	return &DefaultPolicy{ConfidenceThreshold: confidenceThreshold, MajorityRatio: majorityRatio}
}

// Decide 实现 Policy
func (p *DefaultPolicy) Decide(_ context.Context, s Situation, req types.EscalationRequest) Verdict {
	if s.Root {
		return p.decideAtRoot(s, req)
	}

	switch req.Reason {
	case types.ReasonLowConfidence:
		// 已被转发过的请求不再由内部节点裁决
		if req.Context.Hops > 0 || req.Context.Candidate == nil {
			return forward(req.Reason)
		}
		others, agree := corroborate(*req.Context.Candidate, s.Votes)
		switch {
		case others == 0:
			return forward(types.ReasonLowConfidence)
		case agree:
			return resolve(types.ActionAccept, "all sibling votes agree with the candidate", nil)
		default:
			return forward(types.ReasonConflictingResults)
		}
	case types.ReasonBudgetExhaustion:
		want := max(req.Context.RequestedTokens, 1)
		if s.Headroom >= want {
			return resolve(types.ActionGrantBudget, "granted from node headroom",
				map[string]string{"tokens": strconv.FormatInt(want, 10)})
		}
		return forward(req.Reason)
	default:
		return forward(req.Reason)
	}
}

func (p *DefaultPolicy) decideAtRoot(s Situation, req types.EscalationRequest) Verdict {
	switch req.Reason {
	case types.ReasonLowConfidence, types.ReasonConflictingResults:
		key, ratio, n := majority(s.Votes)
		if n >= 2 {
			if ratio >= p.MajorityRatio {
				cond := map[string]string{"majority": key, "ratio": strconv.FormatFloat(ratio, 'f', 2, 64)}
				if c := req.Context.Candidate; c == nil || voteKey(NormalizeVote(*c)) == key {
					return resolve(types.ActionAccept, "majority vote", cond)
				}
				return resolve(types.ActionSkip, "candidate overruled by majority vote", cond)
			}
			return resolve(types.ActionFlagManualReview, "no clear majority", nil)
		}
		if c := req.Context.Candidate; c != nil && c.Confidence >= p.ConfidenceThreshold {
			return resolve(types.ActionAccept, "candidate confidence above threshold", nil)
		}
		return resolve(types.ActionFlagManualReview, "insufficient votes", nil)
	case types.ReasonBudgetExhaustion:
		if s.Headroom > 0 {
			grant := min(max(req.Context.RequestedTokens, 1), s.Headroom)
			return resolve(types.ActionGrantBudget, "granted from root headroom",
				map[string]string{"tokens": strconv.FormatInt(grant, 10)})
		}
		return resolve(types.ActionHaltSubtree, "root budget exhausted", nil)
	default:
		return resolve(types.ActionFlagManualReview, "root policy default", nil)
	}
}

func resolve(a types.Action, reason string, cond map[string]string) Verdict {
	return Verdict{Resolve: true, Decision: a, Reason: reason, Conditions: cond}
}

func forward(reason types.EscalationReason) Verdict {
	return Verdict{Forward: reason}
}

// corroborate 统计候选之外的非弃权投票，并判断它们是否全部与候选一致
func corroborate(candidate types.Vote, votes []types.Vote) (int, bool) {
	want := voteKey(NormalizeVote(candidate))
	others, agree := 0, true
	for _, v := range votes {
		if v.NodeID == candidate.NodeID || v.Abstain {
			continue
		}
		others++
		if voteKey(v) != want {
			agree = false
		}
	}
	return others, agree
}

// majority 返回得票最多的值、占非弃权投票的比例与非弃权票数
// 平票时取先出现的值
func majority(votes []types.Vote) (string, float64, int) {
	counts := make(map[string]int)
	var order []string
	n := 0
	for _, v := range votes {
		if v.Abstain {
			continue
		}
		k := voteKey(v)
		if counts[k] == 0 {
			order = append(order, k)
		}
		counts[k]++
		n++
	}
	if n == 0 {
		return "", 0, 0
	}
	best := order[0]
	for _, k := range order[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return best, float64(counts[best]) / float64(n), n
}
