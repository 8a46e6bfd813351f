package escalation

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/BaSui01/bstflow/tree"
	"github.com/BaSui01/bstflow/types"
)

// ErrRootEscalation 根节点没有上级可以升级
var ErrRootEscalation = errors.New("root node cannot escalate")

// Timeouts 按发送方层级索引的升级超时，层级越高超时越长
type Timeouts []time.Duration

// DefaultTimeouts 默认 5s/10s/15s/20s/30s
func DefaultTimeouts() Timeouts {
	return Timeouts{5 * time.Second, 10 * time.Second, 15 * time.Second, 20 * time.Second, 30 * time.Second}
}

// For 返回层级 level 的超时，超出配置长度时取最后一项
func (t Timeouts) For(level int) time.Duration {
	if len(t) == 0 {
		return DefaultTimeouts().For(level)
	}
	i := min(max(level-1, 0), len(t)-1)
	return t[i]
}

// Phase 节点在一次操作中的阶段
type Phase int32

const (
	PhaseDispatched Phase = iota
	PhaseExecuting
	PhaseResolved
	PhaseEscalating
	PhaseAggregated
)

func (p Phase) String() string {
	switch p {
	case PhaseDispatched:
		return "dispatched"
	case PhaseExecuting:
		return "executing"
	case PhaseResolved:
		return "resolved"
	case PhaseEscalating:
		return "escalating"
	case PhaseAggregated:
		return "aggregated"
	default:
		return "unknown"
	}
}

// Budgeter 预算余量与授予，由预算管理器提供
type Budgeter interface {
	Headroom(nodeID string) int64
	Grant(granterID, nodeID string, amount int64) int64
}

// Observer 升级观测，nil 安全
type Observer interface {
	ObserveEscalation(level int, reason, outcome string, d time.Duration)
}

// Options 协调器网络配置
type Options struct {
	Policy   Policy
	Timeouts Timeouts
	Budgeter Budgeter
	Observer Observer
	Tracer   trace.Tracer
	Logger   *zap.Logger
	// VoteWait 无截止时间时等待兄弟投票的上限
	VoteWait time.Duration
}

func (o *Options) normalize() {
	if o.Policy == nil {
		o.Policy = NewDefaultPolicy(0, 0)
	}
	if len(o.Timeouts) == 0 {
		o.Timeouts = DefaultTimeouts()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if o.VoteWait <= 0 {
		o.VoteWait = time.Second
	}
}

// Result 一次升级往返的结果
type Result struct {
	Request  types.EscalationRequest
	Response types.DecisionResponse
	TimedOut bool
}

// Applied 转换为节点报告中的决策记录
func (r Result) Applied() types.AppliedDecision {
	return types.AppliedDecision{
		EscalationID: r.Request.ID,
		Action:       r.Response.Decision.Name,
		DecidedBy:    r.Response.DecidedBy,
		TimedOut:     r.TimedOut,
		Final:        r.Response.Final,
	}
}

// Network 一次分析中整棵树的协调器
type Network struct {
	coords map[string]*Coordinator
	trail  *Trail
}

// NewNetwork 为树上每个节点创建协调器并连接父子关系
func NewNetwork(t *tree.Tree, opts Options) *Network {
	opts.normalize()
	n := &Network{
		coords: make(map[string]*Coordinator, t.Size()),
		trail:  NewTrail(),
	}
	t.Walk(func(node *tree.Node) bool {
		c := &Coordinator{
			nodeID: node.ID,
			level:  node.Level,
			trail:  n.trail,
			opts:   &opts,
			sem:    make(chan struct{}, 1),
			logger: opts.Logger.With(zap.String("component", "escalation"), zap.String("node_id", node.ID)),
		}
		// 只有叶子投票，公告板只建在叶子的父节点上
		if node.Level == 2 {
			ids := make([]string, len(node.Children))
			for i, ch := range node.Children {
				ids[i] = ch.ID
			}
			c.board = NewBoard(ids)
		}
		c.history = []Phase{PhaseDispatched}
		if node.Parent != nil {
			c.parent = n.coords[node.Parent.ID]
		}
		n.coords[node.ID] = c
		return true
	})
	return n
}

// Coordinator 返回节点的协调器
func (n *Network) Coordinator(nodeID string) *Coordinator { return n.coords[nodeID] }

// Trail 返回审计轨迹
func (n *Network) Trail() *Trail { return n.trail }

// Coordinator 单个节点的升级协调器
type Coordinator struct {
	nodeID string
	level  int
	parent *Coordinator
	board  *Board
	trail  *Trail
	opts   *Options
	logger *zap.Logger

	// sem 保证同一父节点一次只处理一个升级
	sem chan struct{}

	phase   atomic.Int32
	mu      sync.Mutex
	history []Phase
}

// NodeID 节点 ID
func (c *Coordinator) NodeID() string { return c.nodeID }

// IsRoot 是否为根节点
func (c *Coordinator) IsRoot() bool { return c.parent == nil }

// SetPhase 记录阶段变化
func (c *Coordinator) SetPhase(p Phase) {
	c.phase.Store(int32(p))
	c.mu.Lock()
	c.history = append(c.history, p)
	c.mu.Unlock()
}

// Phase 当前阶段
func (c *Coordinator) Phase() Phase { return Phase(c.phase.Load()) }

// History 阶段变化历史
func (c *Coordinator) History() []Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Phase, len(c.history))
	copy(out, c.history)
	return out
}

// Vote 向父节点的公告板张贴投票
func (c *Coordinator) Vote(v types.Vote) {
	v.NodeID = c.nodeID
	if c.parent != nil && c.parent.board != nil {
		c.parent.board.Post(v)
	}
}

// Send 把请求交给父节点裁决，不做超时处理
// 根节点调用返回 ErrRootEscalation
func (c *Coordinator) Send(ctx context.Context, req types.EscalationRequest) (types.DecisionResponse, error) {
	if c.parent == nil {
		return types.DecisionResponse{}, ErrRootEscalation
	}
	wireReq, err := transferRequest(req)
	if err != nil {
		return types.DecisionResponse{}, err
	}
	resp, err := c.parent.Decide(ctx, wireReq)
	if err != nil {
		return types.DecisionResponse{}, err
	}
	return transferResponse(resp)
}

// Escalate 向父节点升级并等待决策
// 超时、父节点不可用或调用方取消时执行请求的默认动作，这不是失败
func (c *Coordinator) Escalate(ctx context.Context, req types.EscalationRequest) Result {
	req.FromNode = c.nodeID
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	if req.DefaultAction.Name == "" {
		req.DefaultAction = types.ActionFlagManualReview
	}
	if req.Context.Origin == "" {
		req.Context.Origin = c.nodeID
	}
	seq := c.trail.nextSeq()
	start := time.Now()

	if c.parent == nil {
		req.ToNode = c.nodeID
		resp := types.DecisionResponse{
			EscalationID: req.ID,
			Decision:     req.DefaultAction,
			Reason:       "root escalation applies its default action",
			DecidedBy:    c.nodeID,
			Final:        true,
		}
		c.record(seq, req, resp, false)
		c.observe(req.Reason, "root_default", start)
		return Result{Request: req, Response: resp}
	}

	req.ToNode = c.parent.nodeID
	timeout := c.opts.Timeouts.For(c.level)
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	} else {
		req.TimeoutMs = timeout.Milliseconds()
	}

	ctx, span := c.opts.Tracer.Start(ctx, "escalation.round_trip",
		trace.WithAttributes(
			attribute.String("escalation.id", req.ID),
			attribute.String("escalation.from", req.FromNode),
			attribute.String("escalation.to", req.ToNode),
			attribute.String("escalation.reason", string(req.Reason)),
			attribute.Int("escalation.hops", req.Context.Hops),
		))
	defer span.End()

	escCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type decided struct {
		resp types.DecisionResponse
		err  error
	}
	ch := make(chan decided, 1)
	go func() {
		resp, err := c.Send(escCtx, req)
		ch <- decided{resp: resp, err: err}
	}()

	var cause error
	select {
	case d := <-ch:
		// 截止时间之后到达的决策按超时处理
		if d.err == nil && escCtx.Err() == nil {
			c.record(seq, req, d.resp, false)
			c.observe(req.Reason, "decided", start)
			span.SetAttributes(
				attribute.String("escalation.decision", d.resp.Decision.Name),
				attribute.String("escalation.decided_by", d.resp.DecidedBy),
			)
			return Result{Request: req, Response: d.resp}
		}
		cause = d.err
		if cause == nil {
			cause = escCtx.Err()
		}
	case <-escCtx.Done():
		cause = escCtx.Err()
	}

	resp := types.DecisionResponse{
		EscalationID: req.ID,
		Decision:     req.DefaultAction,
		Reason:       "no decision within timeout, default action applied",
		DecidedBy:    c.nodeID,
	}
	c.logger.Warn("escalation timed out, applying default action",
		zap.String("escalation_id", req.ID),
		zap.String("reason", string(req.Reason)),
		zap.String("default_action", req.DefaultAction.Name),
		zap.Duration("timeout", timeout),
		zap.Error(cause),
	)
	span.SetStatus(codes.Error, "escalation timed out")
	c.record(seq, req, resp, true)
	c.observe(req.Reason, "timeout", start)
	return Result{Request: req, Response: resp, TimedOut: true}
}

// Decide 处理子节点的升级请求
// 同一节点一次只处理一个请求，等待处理槽位时遵守 ctx 截止时间
func (c *Coordinator) Decide(ctx context.Context, req types.EscalationRequest) (types.DecisionResponse, error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return types.DecisionResponse{}, ctx.Err()
	}
	defer func() { <-c.sem }()

	votes := req.Context.Votes
	if len(votes) == 0 && c.board != nil && needsVotes(req.Reason) {
		wait := c.opts.VoteWait
		if dl, ok := ctx.Deadline(); ok {
			wait = time.Until(dl) / 2
		}
		votes = c.board.Wait(ctx, wait)
	}

	s := Situation{
		NodeID:   c.nodeID,
		Level:    c.level,
		Root:     c.parent == nil,
		Votes:    votes,
		Headroom: c.headroom(),
	}
	v := c.opts.Policy.Decide(ctx, s, req)
	if !v.Resolve && c.parent == nil {
		v = resolve(types.ActionFlagManualReview, "root policy default", nil)
	}

	if v.Resolve && v.Decision.Name == types.ActionGrantBudget.Name {
		v = c.applyGrant(v, req)
	}

	if v.Resolve {
		c.logger.Debug("escalation resolved",
			zap.String("escalation_id", req.ID),
			zap.String("from", req.FromNode),
			zap.String("decision", v.Decision.Name),
		)
		return types.DecisionResponse{
			EscalationID: req.ID,
			Decision:     v.Decision,
			Reason:       v.Reason,
			Conditions:   v.Conditions,
			DecidedBy:    c.nodeID,
			Final:        c.parent == nil,
		}, nil
	}

	c.logger.Debug("forwarding escalation",
		zap.String("escalation_id", req.ID),
		zap.String("from", req.FromNode),
		zap.String("reason", string(v.Forward)),
	)
	res := c.Escalate(ctx, types.EscalationRequest{
		Reason: v.Forward,
		Context: types.EscalationContext{
			Payload:         req.Context.Payload,
			Candidate:       req.Context.Candidate,
			Votes:           votes,
			Origin:          req.Context.Origin,
			Hops:            req.Context.Hops + 1,
			RequestedTokens: req.Context.RequestedTokens,
		},
		Options:       req.Options,
		DefaultAction: req.DefaultAction,
	})
	resp := res.Response
	resp.EscalationID = req.ID
	return resp, nil
}

// applyGrant 从本节点余量中授予请求方额度，无法授予时改为转发或停止子树
func (c *Coordinator) applyGrant(v Verdict, req types.EscalationRequest) Verdict {
	want, _ := strconv.ParseInt(v.Conditions["tokens"], 10, 64)
	var granted int64
	if c.opts.Budgeter != nil {
		granted = c.opts.Budgeter.Grant(c.nodeID, req.Context.Origin, want)
	}
	if granted > 0 {
		v.Conditions = map[string]string{"tokens": strconv.FormatInt(granted, 10)}
		return v
	}
	if c.parent == nil {
		return resolve(types.ActionHaltSubtree, "no headroom left to grant", nil)
	}
	return forward(req.Reason)
}

func (c *Coordinator) headroom() int64 {
	if c.opts.Budgeter == nil {
		return 0
	}
	return c.opts.Budgeter.Headroom(c.nodeID)
}

func (c *Coordinator) record(seq int64, req types.EscalationRequest, resp types.DecisionResponse, timedOut bool) {
	c.trail.record(seq, types.TrailEntry{
		EscalationID: req.ID,
		From:         req.FromNode,
		To:           req.ToNode,
		Reason:       req.Reason,
		Decision:     resp.Decision.Name,
		DecidedBy:    resp.DecidedBy,
		TimedOut:     timedOut,
		Final:        resp.Final,
		Hops:         req.Context.Hops,
	})
}

func (c *Coordinator) observe(reason types.EscalationReason, outcome string, start time.Time) {
	if c.opts.Observer != nil {
		c.opts.Observer.ObserveEscalation(c.level, string(reason), outcome, time.Since(start))
	}
}

func needsVotes(r types.EscalationReason) bool {
	return r == types.ReasonLowConfidence || r == types.ReasonConflictingResults
}
