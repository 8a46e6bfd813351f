package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/bstflow/aggregate"
	"github.com/BaSui01/bstflow/budget"
	"github.com/BaSui01/bstflow/escalation"
	"github.com/BaSui01/bstflow/leaf"
	"github.com/BaSui01/bstflow/tree"
	"github.com/BaSui01/bstflow/types"
)

// Recorder 引擎指标记录，由 internal/metrics.Collector 实现
type Recorder interface {
	ObserveAttempt(nodeID string, attempt int, outcome string, tokens int64)
	ObserveEscalation(level int, reason, outcome string, d time.Duration)
	RecordNode(level int, status string, d time.Duration)
	RecordTokens(level int, tokens int64)
	RecordQualityDirective(quality string)
	RecordBudgetAlert(alertType string)
	RecordAnalysis(status string, d time.Duration)
}

// ReportSaver 持久化最终报告
type ReportSaver interface {
	Save(ctx context.Context, report *types.FinalReport) error
}

// Request 一次分析请求
type Request struct {
	ID      string `json:"request_id,omitempty"`
	Payload any    `json:"payload,omitempty"`
	// Debug 为 true 时 DEBUG 日志随报告向上传递
	Debug bool `json:"debug,omitempty"`
}

// Option 引擎选项
type Option func(*Engine)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithRecorder 设置指标记录
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithTracer 设置追踪器
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithStore 设置报告存储
func WithStore(s ReportSaver) Option {
	return func(e *Engine) { e.store = s }
}

// WithPolicy 替换内置决策策略
func WithPolicy(p escalation.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithLogFilter 设置日志削减参数
func WithLogFilter(f aggregate.LogFilter) Option {
	return func(e *Engine) { e.filter = f }
}

// Engine 分层决策升级与聚合引擎
type Engine struct {
	config   Config
	tree     *tree.Tree
	executor *leaf.Executor
	agg      *aggregate.Aggregator
	filter   aggregate.LogFilter
	policy   escalation.Policy
	recorder Recorder
	tracer   trace.Tracer
	store    ReportSaver
	logger   *zap.Logger
}

// New 校验配置并构建引擎
// handler 绑定到所有叶子，可为 nil 后通过 Tree().SetHandler 逐个绑定
func New(config Config, handler types.Handler, opts ...Option) (*Engine, error) {
	defaults := DefaultConfig()
	if len(config.AggregationTimeoutMs) == 0 {
		config.AggregationTimeoutMs = defaults.AggregationTimeoutMs
	}
	if len(config.EscalationTimeoutMs) == 0 {
		config.EscalationTimeoutMs = defaults.EscalationTimeoutMs
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	t, err := tree.Build(config.Levels, config.Fanout)
	if err != nil {
		return nil, err
	}
	if handler != nil {
		t.SetHandlerAll(handler)
	}
	if err := t.MarkOptional(config.OptionalLeaves...); err != nil {
		return nil, err
	}
	for id := range config.BudgetWeights {
		if _, ok := t.Node(id); !ok {
			return nil, &types.ConfigError{Field: "budget_weights." + id, Reason: "unknown node"}
		}
	}

	e := &Engine{
		config: config,
		tree:   t,
		filter: aggregate.DefaultLogFilter(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.logger = e.logger.With(zap.String("component", "engine"))
	if e.tracer == nil {
		e.tracer = noop.NewTracerProvider().Tracer("")
	}
	if e.policy == nil {
		e.policy = escalation.NewDefaultPolicy(config.ConfidenceThreshold, config.MajorityRatio)
	}

	var observer leaf.Observer
	if e.recorder != nil {
		observer = e.recorder
	}
	e.executor = leaf.NewExecutor(config.leafConfig(), observer, e.logger)
	e.agg = aggregate.NewAggregator(e.filter, e.logger)
	return e, nil
}

// Tree 返回拓扑，用于逐个绑定处理器或标记可选叶子
func (e *Engine) Tree() *tree.Tree { return e.tree }

// Config 返回生效的配置
func (e *Engine) Config() Config { return e.config }

// Analyze 执行一次完整分析
// 只有参数错误会返回 error；叶子的任何异常都体现在报告中
func (e *Engine) Analyze(ctx context.Context, req Request) (*types.FinalReport, error) {
	if ctx == nil {
		return nil, types.NewError(types.ErrConfigInvalid, "nil context")
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	start := time.Now()

	bm, err := budget.NewManager(e.tree, e.config.budgetConfig(), e.logger)
	if err != nil {
		return nil, err
	}
	if e.recorder != nil {
		bm.OnAlert(func(a budget.Alert) {
			e.recorder.RecordBudgetAlert(string(a.Type))
			if a.Type == budget.AlertThrottle {
				e.recorder.RecordQualityDirective(a.Quality.String())
			}
		})
	}

	var escObserver escalation.Observer
	if e.recorder != nil {
		escObserver = e.recorder
	}
	net := escalation.NewNetwork(e.tree, escalation.Options{
		Policy:   e.policy,
		Timeouts: e.config.escalationTimeouts(),
		Budgeter: bm,
		Observer: escObserver,
		Tracer:   e.tracer,
		Logger:   e.logger,
	})

	r := &run{
		engine:   e,
		req:      req,
		budget:   bm,
		net:      net,
		pressure: make(map[string]chan budget.Pressure),
		logger:   e.logger.With(zap.String("request_id", req.ID)),
	}
	if limit := e.config.leafConcurrency(); limit > 0 {
		r.sem = semaphore.NewWeighted(int64(limit))
	}
	e.tree.Walk(func(n *tree.Node) bool {
		if !n.IsLeaf() {
			r.pressure[n.ID] = make(chan budget.Pressure, 1)
		}
		return true
	})

	ctx, span := e.tracer.Start(ctx, "engine.analyze", trace.WithAttributes(
		attribute.String("request.id", req.ID),
		attribute.Int("tree.levels", e.tree.Levels()),
		attribute.Int("tree.fanout", e.tree.Fanout()),
	))
	defer span.End()

	rootReport := r.execute(ctx, e.tree.Root())

	if consumed := bm.Root().Consumed(); consumed != rootReport.Tokens.Total {
		e.logger.DPanic("budget and report token totals diverge",
			zap.String("request_id", req.ID),
			zap.Int64("budget_consumed", consumed),
			zap.Int64("report_total", rootReport.Tokens.Total),
		)
	}

	report := &types.FinalReport{
		RequestID:     req.ID,
		Status:        rootReport.Status,
		OverallResult: rootReport.Result,
		TokenUsage: types.FinalTokenUsage{
			Total:  rootReport.Tokens.Total,
			ByNode: rootReport.Tokens.ByNode,
		},
		Logs:            append(rootReport.Logs, alertLogs(bm.Alerts())...),
		EscalationTrail: net.Trail().Entries(),
		DurationMs:      time.Since(start).Milliseconds(),
		CreatedAt:       start,
	}
	report.Recommendation = recommend(report, r.leafSummaries())

	span.SetAttributes(
		attribute.String("report.status", string(report.Status)),
		attribute.Int64("report.tokens", report.TokenUsage.Total),
		attribute.Int("report.escalations", len(report.EscalationTrail)),
	)
	if e.recorder != nil {
		e.recorder.RecordAnalysis(string(report.Status), time.Since(start))
	}
	if e.store != nil {
		if err := e.store.Save(ctx, report); err != nil {
			e.logger.Error("failed to save report", zap.String("request_id", req.ID), zap.Error(err))
		}
	}

	e.logger.Info("analysis completed",
		zap.String("request_id", req.ID),
		zap.String("status", string(report.Status)),
		zap.Int64("tokens", report.TokenUsage.Total),
		zap.Int("escalations", len(report.EscalationTrail)),
		zap.Int64("duration_ms", report.DurationMs),
	)
	return report, nil
}

// alertLogs 将预算告警转换为报告日志
func alertLogs(alerts []budget.Alert) []types.LogEntry {
	out := make([]types.LogEntry, 0, len(alerts))
	for _, a := range alerts {
		level := types.LogWarning
		if a.Type == budget.AlertGrant {
			level = types.LogInfo
		}
		e := types.NewLogEntry(level, a.NodeID, "budget "+string(a.Type)+": "+a.Message)
		e.Operation = "budget"
		e.Timestamp = a.Timestamp
		e.Anomalous = true
		out = append(out, e)
	}
	return out
}

// recommend 根据最终状态与升级轨迹给出处理建议
func recommend(report *types.FinalReport, leaves map[string]types.ChildSummary) string {
	var review, failing, skipped []string
	for _, e := range report.EscalationTrail {
		if e.Final && e.Decision == types.ActionFlagManualReview.Name {
			review = append(review, e.From)
		}
	}
	for _, id := range slices.Sorted(maps.Keys(leaves)) {
		switch s := leaves[id]; {
		case s.Skipped:
			skipped = append(skipped, id)
		case s.Status == types.StatusError:
			failing = append(failing, id)
		}
	}

	switch {
	case report.Status == types.StatusHealthy && len(review) == 0:
		return "no action required"
	case len(review) > 0:
		return fmt.Sprintf("manual review required for escalations from %v", review)
	case len(failing) > 0:
		return fmt.Sprintf("investigate failing leaves %v", failing)
	case len(skipped) > 0:
		return fmt.Sprintf("results incomplete: %d leaves skipped under budget pressure", len(skipped))
	default:
		return "review degraded subtrees"
	}
}
