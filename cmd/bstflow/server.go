package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/bstflow/api/handlers"
	"github.com/BaSui01/bstflow/config"
	"github.com/BaSui01/bstflow/internal/metrics"
	"github.com/BaSui01/bstflow/internal/server"
	"github.com/BaSui01/bstflow/store"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组合引擎、报告存储与 HTTP 端点
type Server struct {
	cfg       *config.Config
	analyzer  handlers.Analyzer
	reports   store.ReportStore
	collector *metrics.Collector
	logger    *zap.Logger

	httpManager *server.Manager
	// 限流器后台清理的生命周期
	limiterCancel context.CancelFunc
}

// NewServer 创建服务器，reports 与 collector 均可为 nil
func NewServer(cfg *config.Config, analyzer handlers.Analyzer, reports store.ReportStore, collector *metrics.Collector, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:       cfg,
		analyzer:  analyzer,
		reports:   reports,
		collector: collector,
		logger:    logger,
	}
}

// Handler 构建路由与中间件链
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	healthOpts := []handlers.HealthOption{
		handlers.WithTopology(s.cfg.Engine.Levels, s.cfg.Engine.Fanout),
	}
	if p, ok := s.reports.(store.Pinger); ok {
		healthOpts = append(healthOpts, handlers.WithProbe("report_store", p.Ping))
	}
	health := handlers.NewHealthHandler(s.logger, healthOpts...)
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(handlers.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}))

	handlers.NewReportHandler(s.analyzer, s.reports, s.logger).Register(mux)

	if s.collector != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		SecurityHeaders(),
		RequestLogger(s.logger),
	}
	if s.collector != nil {
		chain = append(chain, MetricsMiddleware(s.collector))
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		chain = append(chain, RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	return Chain(mux, chain...)
}

// =============================================================================
// 🚀 生命周期
// =============================================================================

// Start 非阻塞启动 HTTP 服务
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.limiterCancel = cancel

	s.httpManager = server.New(s.Handler(ctx), s.logger,
		server.WithAddr(fmt.Sprintf(":%d", s.cfg.Server.HTTPPort)),
		server.WithTimeouts(s.cfg.Server.ReadTimeout, s.cfg.Server.WriteTimeout),
		server.WithDrainTimeout(s.cfg.Server.ShutdownTimeout),
	)

	if err := s.httpManager.Start(); err != nil {
		cancel()
		return err
	}
	s.logger.Info("HTTP server started",
		zap.Int("port", s.cfg.Server.HTTPPort),
		zap.Bool("metrics", s.collector != nil),
		zap.Bool("report_store", s.reports != nil),
	)
	return nil
}

// Wait 阻塞到 ctx 结束或服务异常，随后关闭 HTTP 服务
func (s *Server) Wait(ctx context.Context) error {
	var serveErr error
	if s.httpManager != nil {
		serveErr = s.httpManager.Wait(ctx)
	}
	return errors.Join(serveErr, s.Shutdown(context.WithoutCancel(ctx)))
}

// Shutdown 关闭 HTTP 服务，报告存储由创建方关闭
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiterCancel != nil {
		s.limiterCancel()
	}
	if s.httpManager == nil {
		return nil
	}
	if err := s.httpManager.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
