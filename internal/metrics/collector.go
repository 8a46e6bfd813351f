package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 叶子指标
	leafAttemptsTotal *prometheus.CounterVec
	leafTokens        *prometheus.CounterVec

	// 节点指标
	nodeExecutionsTotal *prometheus.CounterVec
	nodeDuration        *prometheus.HistogramVec
	nodeTokens          *prometheus.CounterVec

	// 升级指标
	escalationsTotal   *prometheus.CounterVec
	escalationDuration *prometheus.HistogramVec

	// 预算指标
	qualityDirectives *prometheus.CounterVec
	budgetAlerts      *prometheus.CounterVec

	// 分析指标
	analysesTotal    *prometheus.CounterVec
	analysisDuration prometheus.Histogram

	// 存储指标
	storeOpDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 叶子指标
	c.leafAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaf_attempts_total",
			Help:      "Total number of leaf handler attempts",
		},
		[]string{"outcome"},
	)

	c.leafTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaf_tokens_total",
			Help:      "Tokens spent by leaf handler attempts",
		},
		[]string{"outcome"},
	)

	// 节点指标
	c.nodeExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Total number of node executions",
		},
		[]string{"level", "status"},
	)

	c.nodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"level"},
	)

	c.nodeTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_tokens_total",
			Help:      "Tokens attributed to nodes, by level",
		},
		[]string{"level"},
	)

	// 升级指标
	c.escalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Total number of escalation round trips",
		},
		[]string{"level", "reason", "outcome"},
	)

	c.escalationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "escalation_duration_seconds",
			Help:      "Escalation round trip duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"level"},
	)

	// 预算指标
	c.qualityDirectives = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quality_directives_total",
			Help:      "Quality directives issued under budget pressure",
		},
		[]string{"quality"},
	)

	c.budgetAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_alerts_total",
			Help:      "Budget alerts fired",
		},
		[]string{"type"},
	)

	// 分析指标
	c.analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Total number of completed analyses",
		},
		[]string{"status"},
	)

	c.analysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "End to end analysis duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	// 存储指标
	c.storeOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Report store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation", "status"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🌲 引擎指标记录
// =============================================================================

// ObserveAttempt 记录一次叶子尝试，节点 ID 不作为 label 以控制基数
func (c *Collector) ObserveAttempt(_ string, _ int, outcome string, tokens int64) {
	c.leafAttemptsTotal.WithLabelValues(outcome).Inc()
	if tokens > 0 {
		c.leafTokens.WithLabelValues(outcome).Add(float64(tokens))
	}
}

// ObserveEscalation 记录一次升级往返
func (c *Collector) ObserveEscalation(level int, reason, outcome string, d time.Duration) {
	l := strconv.Itoa(level)
	c.escalationsTotal.WithLabelValues(l, reason, outcome).Inc()
	c.escalationDuration.WithLabelValues(l).Observe(d.Seconds())
}

// RecordNode 记录节点执行
func (c *Collector) RecordNode(level int, status string, d time.Duration) {
	l := strconv.Itoa(level)
	c.nodeExecutionsTotal.WithLabelValues(l, status).Inc()
	c.nodeDuration.WithLabelValues(l).Observe(d.Seconds())
}

// RecordTokens 记录节点自身消耗
func (c *Collector) RecordTokens(level int, tokens int64) {
	if tokens <= 0 {
		return
	}
	c.nodeTokens.WithLabelValues(strconv.Itoa(level)).Add(float64(tokens))
}

// RecordQualityDirective 记录质量指令
func (c *Collector) RecordQualityDirective(quality string) {
	c.qualityDirectives.WithLabelValues(quality).Inc()
}

// RecordBudgetAlert 记录预算告警
func (c *Collector) RecordBudgetAlert(alertType string) {
	c.budgetAlerts.WithLabelValues(alertType).Inc()
}

// RecordAnalysis 记录一次完整分析
func (c *Collector) RecordAnalysis(status string, d time.Duration) {
	c.analysesTotal.WithLabelValues(status).Inc()
	c.analysisDuration.Observe(d.Seconds())
}

// =============================================================================
// 🗄️ 存储指标记录
// =============================================================================

// RecordStoreOp 记录报告存储操作
func (c *Collector) RecordStoreOp(backend, operation string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.storeOpDuration.WithLabelValues(backend, operation, status).Observe(d.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
