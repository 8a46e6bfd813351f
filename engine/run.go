package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/bstflow/aggregate"
	"github.com/BaSui01/bstflow/budget"
	"github.com/BaSui01/bstflow/escalation"
	"github.com/BaSui01/bstflow/tree"
	"github.com/BaSui01/bstflow/types"
)

var (
	leafOptions    = []types.Action{types.ActionAccept, types.ActionSkip, types.ActionFlagManualReview}
	timeoutOptions = []types.Action{types.ActionFlagManualReview, types.ActionSkip, types.ActionAbort}
	errorOptions   = []types.Action{types.ActionFlagManualReview, types.ActionAbort}
	budgetOptions  = []types.Action{types.ActionGrantBudget, types.ActionHaltSubtree}
)

// run 一次分析的执行状态
type run struct {
	engine   *Engine
	req      Request
	budget   *budget.Manager
	net      *escalation.Network
	sem      *semaphore.Weighted
	pressure map[string]chan budget.Pressure
	logger   *zap.Logger

	mu     sync.Mutex
	leaves map[string]types.ChildSummary
}

// nodeState 节点自身在聚合前累积的状态
type nodeState struct {
	nodeID     string
	status     types.Status
	result     any
	logs       []types.LogEntry
	decisions  []types.AppliedDecision
	dropResult bool
}

func (st *nodeState) log(level types.LogLevel, msg string) {
	e := types.NewLogEntry(level, st.nodeID, msg)
	e.Operation = "coordinate"
	st.logs = append(st.logs, e)
}

func (r *run) execute(ctx context.Context, n *tree.Node) types.NodeReport {
	start := time.Now()
	ctx, span := r.engine.tracer.Start(ctx, "node.execute", trace.WithAttributes(
		attribute.String("node.id", n.ID),
		attribute.Int("node.level", n.Level),
	))
	defer span.End()

	coord := r.net.Coordinator(n.ID)
	coord.SetPhase(escalation.PhaseExecuting)

	var report types.NodeReport
	if n.IsLeaf() {
		report = r.executeLeaf(ctx, n, coord)
		r.recordLeaf(&report)
	} else {
		report = r.executeInternal(ctx, n, coord)
	}
	coord.SetPhase(escalation.PhaseAggregated)

	span.SetAttributes(
		attribute.String("node.status", string(report.Status)),
		attribute.Int64("node.tokens", report.Tokens.Total),
	)
	if report.Status == types.StatusError {
		span.SetStatus(codes.Error, report.Error)
	}
	if rec := r.engine.recorder; rec != nil {
		rec.RecordNode(n.Level, string(report.Status), time.Since(start))
		rec.RecordTokens(n.Level, report.Tokens.Own)
	}
	return report
}

// =============================================================================
// 🍃 叶子节点
// =============================================================================

func (r *run) executeLeaf(ctx context.Context, n *tree.Node, coord *escalation.Coordinator) types.NodeReport {
	st := &nodeState{nodeID: n.ID, status: types.StatusHealthy}
	abstain := types.Vote{Abstain: true}

	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			coord.Vote(abstain)
			r.leafDone(n.ID)
			st.log(types.LogWarning, "leaf cancelled before start")
			return leafReport(n, st, types.StatusUnknown, 0, nil)
		}
		defer r.sem.Release(1)
	}
	if ctx.Err() != nil {
		coord.Vote(abstain)
		r.leafDone(n.ID)
		st.log(types.LogWarning, "leaf cancelled before start")
		return leafReport(n, st, types.StatusUnknown, 0, nil)
	}

	quality := r.budget.EffectiveQuality(n.ID)
	if quality.Skips(n.Optional) || r.budget.Exhausted() {
		coord.Vote(abstain)
		r.leafDone(n.ID)
		if r.budget.Exhausted() {
			st.log(types.LogWarning, "leaf skipped: token budget exhausted")
		} else {
			st.log(types.LogWarning, "leaf skipped under "+quality.String()+" quality directive")
		}
		report := leafReport(n, st, types.StatusUnknown, 0, nil)
		report.Skipped = true
		return report
	}

	out := r.engine.executor.Execute(ctx, n.Handler, types.Input{
		NodeID:  n.ID,
		Request: r.req.Payload,
		Quality: quality,
		Debug:   r.req.Debug,
	}, r.engine.config.LeafTimeout())

	tokens := out.Tokens()
	r.budget.Consume(n.ID, tokens)
	r.leafDone(n.ID)
	entries := slices.Clone(out.Entries())

	switch o := out.(type) {
	case *types.Success:
		st.result = o.Result
		vote := types.Vote{NodeID: n.ID, Value: o.Result, Confidence: o.EffectiveConfidence()}
		coord.Vote(vote)
		if vote.Confidence < r.engine.config.ConfidenceThreshold {
			coord.SetPhase(escalation.PhaseEscalating)
			res := coord.Escalate(ctx, types.EscalationRequest{
				Reason:        types.ReasonLowConfidence,
				Context:       types.EscalationContext{Payload: o.Result, Candidate: &vote},
				Options:       leafOptions,
				DefaultAction: types.ActionFlagManualReview,
			})
			r.apply(st, res, true)
		}
		coord.SetPhase(escalation.PhaseResolved)

	case *types.Escalate:
		st.result = o.Result
		var candidate *types.Vote
		if o.Result != nil {
			vote := types.Vote{NodeID: n.ID, Value: o.Result, Confidence: o.Confidence}
			coord.Vote(vote)
			candidate = &vote
		} else {
			coord.Vote(abstain)
		}
		reason := o.Reason
		if reason == "" {
			reason = types.ReasonPolicyConcern
		}
		options := o.Options
		if len(options) == 0 {
			options = leafOptions
		}
		def := types.ActionFlagManualReview
		if o.Default != nil {
			def = *o.Default
		}
		coord.SetPhase(escalation.PhaseEscalating)
		res := coord.Escalate(ctx, types.EscalationRequest{
			Reason:        reason,
			Context:       types.EscalationContext{Payload: o.Payload, Candidate: candidate},
			Options:       options,
			DefaultAction: def,
		})
		r.apply(st, res, true)
		coord.SetPhase(escalation.PhaseResolved)

	case *types.Failure:
		coord.Vote(abstain)
		report := leafReport(n, st, types.StatusError, tokens, entries)
		report.Error = o.Error()
		switch o.Kind {
		case types.FailureCancelled:
			report.Status = types.StatusUnknown
		case types.FailureTimeout:
			report.Status = types.StatusDegraded
			if r.engine.config.EscalateOnTimeout {
				coord.SetPhase(escalation.PhaseEscalating)
				res := coord.Escalate(ctx, types.EscalationRequest{
					Reason:        types.ReasonTimeout,
					Options:       timeoutOptions,
					DefaultAction: types.ActionFlagManualReview,
				})
				r.apply(st, res, true)
				report.Status = st.status
				report.Logs = append(report.Logs, st.logs...)
				report.Decisions = st.decisions
			}
		}
		coord.SetPhase(escalation.PhaseResolved)
		return report
	}

	return leafReport(n, st, st.status, tokens, entries)
}

func leafReport(n *tree.Node, st *nodeState, status types.Status, tokens int64, entries []types.LogEntry) types.NodeReport {
	report := types.NodeReport{
		NodeID:    n.ID,
		Level:     n.Level,
		Status:    status,
		Logs:      append(entries, st.logs...),
		Tokens:    aggregate.LeafTokens(n.ID, tokens),
		Decisions: st.decisions,
	}
	if !st.dropResult {
		report.Result = st.result
	}
	return report
}

// =============================================================================
// 🌳 内部节点
// =============================================================================

func (r *run) executeInternal(ctx context.Context, n *tree.Node, coord *escalation.Coordinator) types.NodeReport {
	st := &nodeState{nodeID: n.ID, status: types.StatusHealthy}
	cfg := r.engine.config

	childCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type indexed struct {
		i      int
		report types.NodeReport
	}
	results := make(chan indexed, len(n.Children))
	var g errgroup.Group
	for i, child := range n.Children {
		g.Go(func() error {
			results <- indexed{i: i, report: r.execute(childCtx, child)}
			return nil
		})
	}

	reports := make([]types.NodeReport, len(n.Children))
	got := make([]bool, len(n.Children))
	received := 0

	barrier := time.NewTimer(cfg.AggregationTimeout(n.Level))
	defer barrier.Stop()
	var grace <-chan time.Time
	parentDone := ctx.Done()
	timedOut := false

collect:
	for received < len(n.Children) {
		select {
		case res := <-results:
			reports[res.i] = res.report
			got[res.i] = true
			received++
		case p := <-r.pressure[n.ID]:
			r.relieve(ctx, coord, st, p)
		case <-barrier.C:
			timedOut = true
			cancel()
			grace = time.After(cfg.CancelGrace())
		case <-parentDone:
			parentDone = nil
			cancel()
			if grace == nil {
				grace = time.After(cfg.CancelGrace())
			}
		case <-grace:
			break collect
		}
	}

	if received == len(n.Children) {
		_ = g.Wait()
	}
	for i, ok := range got {
		if ok {
			continue
		}
		child := n.Children[i]
		r.logger.Error("child did not report after cancellation",
			zap.String("node_id", n.ID),
			zap.String("child_id", child.ID),
		)
		lost := types.NodeReport{
			NodeID: child.ID,
			Level:  child.Level,
			Status: types.StatusUnknown,
			Tokens: aggregate.LeafTokens(child.ID, 0),
			Logs:   []types.LogEntry{types.NewLogEntry(types.LogError, child.ID, "no report received after cancellation")},
		}
		reports[i] = lost
	}

	if timedOut {
		cancelled := 0
		for _, rep := range reports {
			if rep.Status == types.StatusUnknown && !rep.Skipped {
				cancelled++
			}
		}
		st.status = types.MaxStatus(st.status, types.StatusDegraded)
		st.log(types.LogWarning, fmt.Sprintf("aggregation timed out after %s, %d children cancelled",
			cfg.AggregationTimeout(n.Level), cancelled))
	}
	coord.SetPhase(escalation.PhaseResolved)

	if ratio := cfg.ErrorEscalationRatio; ratio > 0 {
		var failed []string
		for _, rep := range reports {
			if rep.Status == types.StatusError {
				failed = append(failed, rep.NodeID)
			}
		}
		if float64(len(failed))/float64(len(reports)) > ratio {
			coord.SetPhase(escalation.PhaseEscalating)
			res := coord.Escalate(ctx, types.EscalationRequest{
				Reason:        types.ReasonUnrecoverableError,
				Context:       types.EscalationContext{Payload: map[string]any{"failed_children": failed}},
				Options:       errorOptions,
				DefaultAction: types.ActionFlagManualReview,
			})
			r.apply(st, res, false)
			coord.SetPhase(escalation.PhaseResolved)
		}
	}

	report, err := r.engine.agg.Aggregate(aggregate.Input{
		NodeID:    n.ID,
		Level:     n.Level,
		OwnStatus: st.status,
		OwnLogs:   st.logs,
		Children:  reports,
		Decisions: st.decisions,
		Debug:     r.req.Debug,
	})
	if err != nil {
		r.logger.DPanic("token conservation violated", zap.String("node_id", n.ID), zap.Error(err))
	}
	if st.dropResult {
		report.Result = nil
	}
	return report
}

// relieve 将节点的预算压力升级为 budget_exhaustion，由上级授予额度或停止子树
func (r *run) relieve(ctx context.Context, coord *escalation.Coordinator, st *nodeState, p budget.Pressure) {
	st.log(types.LogWarning, fmt.Sprintf("projected overrun of %d tokens at minimal quality", p.Requested))
	coord.SetPhase(escalation.PhaseEscalating)
	res := coord.Escalate(ctx, types.EscalationRequest{
		Reason: types.ReasonBudgetExhaustion,
		Context: types.EscalationContext{
			Payload: map[string]any{
				"projection": p.Projection,
				"budget":     p.Budget,
				"allocated":  r.budget.Budget(p.NodeID).Allocated(),
			},
			RequestedTokens: p.Requested,
		},
		Options:       budgetOptions,
		DefaultAction: types.ActionHaltSubtree,
	})
	r.apply(st, res, false)
	coord.SetPhase(escalation.PhaseExecuting)
}

// apply 执行决策
// 叶子的状态直接由决策决定；内部节点的状态只会因决策变得更严重
func (r *run) apply(st *nodeState, res escalation.Result, leaf bool) {
	st.decisions = append(st.decisions, res.Applied())
	action := res.Response.Decision

	if action.ResultStatus != "" {
		if leaf {
			st.status = action.ResultStatus
		} else {
			st.status = types.MaxStatus(st.status, action.ResultStatus)
		}
	}
	if !action.KeepResult {
		st.dropResult = true
	}
	if action.Name == types.ActionHaltSubtree.Name {
		r.budget.Halt(st.nodeID)
	}

	if res.TimedOut {
		st.log(types.LogWarning, fmt.Sprintf("escalation %s (%s) timed out, applied default %s",
			res.Request.ID, res.Request.Reason, action.Name))
		return
	}
	e := types.NewLogEntry(types.LogInfo, st.nodeID, fmt.Sprintf("escalation %s (%s) decided by %s: %s",
		res.Request.ID, res.Request.Reason, res.Response.DecidedBy, action.Name))
	e.Operation = "coordinate"
	e.Anomalous = true
	st.logs = append(st.logs, e)
}

func (r *run) leafDone(leafID string) {
	for _, p := range r.budget.LeafDone(leafID) {
		select {
		case r.pressure[p.NodeID] <- p:
		default:
		}
	}
}

func (r *run) recordLeaf(report *types.NodeReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.leaves == nil {
		r.leaves = make(map[string]types.ChildSummary)
	}
	r.leaves[report.NodeID] = report.Summary()
}

func (r *run) leafSummaries() map[string]types.ChildSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.leaves)
}
