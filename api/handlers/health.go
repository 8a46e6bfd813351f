package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Probe 就绪探针，Check 返回 nil 表示依赖可用
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Topology 引擎树形状，随存活检查一并返回
type Topology struct {
	Levels int `json:"levels"`
	Fanout int `json:"fanout"`
}

// BuildInfo 构建信息
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
}

// Liveness /health 响应
type Liveness struct {
	Status   string    `json:"status"`
	Uptime   string    `json:"uptime"`
	Topology *Topology `json:"topology,omitempty"`
}

// Readiness /ready 响应
type Readiness struct {
	Ready  bool          `json:"ready"`
	Probes []ProbeResult `json:"probes"`
}

// ProbeResult 单个探针结果
type ProbeResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// HealthOption 配置 HealthHandler
type HealthOption func(*HealthHandler)

// WithProbe 注册就绪探针
func WithProbe(name string, check func(ctx context.Context) error) HealthOption {
	return func(h *HealthHandler) {
		h.probes = append(h.probes, Probe{Name: name, Check: check})
	}
}

// WithProbeTimeout 设置整轮就绪检查的超时
func WithProbeTimeout(d time.Duration) HealthOption {
	return func(h *HealthHandler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithTopology 在存活检查中附带树形状
func WithTopology(levels, fanout int) HealthOption {
	return func(h *HealthHandler) {
		h.topology = &Topology{Levels: levels, Fanout: fanout}
	}
}

// HealthHandler 存活/就绪/版本端点
type HealthHandler struct {
	logger   *zap.Logger
	probes   []Probe
	timeout  time.Duration
	topology *Topology
	started  time.Time
}

// NewHealthHandler 创建 HealthHandler，探针在构造后不可变
func NewHealthHandler(logger *zap.Logger, opts ...HealthOption) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &HealthHandler{
		logger:  logger.With(zap.String("component", "health")),
		timeout: 5 * time.Second,
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleHealth 进程能响应即视为存活，不运行探针
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, Liveness{
		Status:   "alive",
		Uptime:   time.Since(h.started).Round(time.Second).String(),
		Topology: h.topology,
	})
}

// HandleReady 并发运行全部探针，任一失败返回 503
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	results := make([]ProbeResult, len(h.probes))
	var g errgroup.Group
	for i, p := range h.probes {
		g.Go(func() error {
			start := time.Now()
			err := p.Check(ctx)
			results[i] = ProbeResult{Name: p.Name, OK: err == nil, LatencyMs: time.Since(start).Milliseconds()}
			if err != nil {
				results[i].Error = err.Error()
				h.logger.Warn("readiness probe failed", zap.String("probe", p.Name), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	ready := Readiness{Ready: true, Probes: results}
	for _, res := range results {
		ready.Ready = ready.Ready && res.OK
	}
	status := http.StatusOK
	if !ready.Ready {
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, ready)
}

// HandleVersion 返回构建信息
func (h *HealthHandler) HandleVersion(info BuildInfo) http.HandlerFunc {
	if info.GoVersion == "" {
		info.GoVersion = runtime.Version()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, r, info)
	}
}
