package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopped
)

// Option 配置 Manager
type Option func(*Manager)

// WithAddr 设置监听地址，":0" 表示随机端口
func WithAddr(addr string) Option {
	return func(m *Manager) { m.addr = addr }
}

// WithTimeouts 设置读写超时，空闲超时取读超时的两倍
func WithTimeouts(read, write time.Duration) Option {
	return func(m *Manager) {
		m.srv.ReadTimeout = read
		m.srv.WriteTimeout = write
		m.srv.IdleTimeout = 2 * read
	}
}

// WithDrainTimeout 设置关闭时等待在途请求的时长
// 超时后在途请求的 ctx 被取消，正在进行的分析据此提前收尾
func WithDrainTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.drain = d
		}
	}
}

// Manager 管理 HTTP 服务生命周期并统计在途请求
type Manager struct {
	srv    *http.Server
	addr   string
	drain  time.Duration
	logger *zap.Logger

	// 所有请求 ctx 的根，排空超时后取消
	base  context.Context
	abort context.CancelFunc

	inflight atomic.Int64
	errs     chan error

	mu    sync.Mutex
	ln    net.Listener
	state state
}

// New 创建 Manager，handler 外层包裹在途计数
func New(handler http.Handler, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, abort := context.WithCancel(context.Background())
	m := &Manager{
		addr:   ":8080",
		drain:  15 * time.Second,
		logger: logger.With(zap.String("component", "http_server")),
		base:   base,
		abort:  abort,
		errs:   make(chan error, 1),
	}
	m.srv = &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.inflight.Add(1)
			defer m.inflight.Add(-1)
			handler.ServeHTTP(w, r)
		}),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
		BaseContext:       func(net.Listener) context.Context { return m.base },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start 监听并在后台提供服务
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case stateRunning:
		return errors.New("server already started")
	case stateStopped:
		return errors.New("server is closed")
	}

	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.addr, err)
	}
	m.ln = ln
	m.state = stateRunning
	m.logger.Info("listening", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := m.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("serve failed", zap.Error(err))
			select {
			case m.errs <- err:
			default:
			}
		}
	}()
	return nil
}

// Shutdown 停止接收新连接并排空在途请求，重复调用无副作用
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == stateStopped {
		return nil
	}
	wasRunning := m.state == stateRunning
	m.state = stateStopped
	if !wasRunning {
		m.abort()
		return nil
	}

	drainCtx, cancel := context.WithTimeout(ctx, m.drain)
	defer cancel()

	m.logger.Info("draining", zap.Int64("in_flight", m.inflight.Load()), zap.Duration("timeout", m.drain))
	err := m.srv.Shutdown(drainCtx)
	m.abort()
	if err != nil {
		m.logger.Warn("drain incomplete, cancelling in-flight requests",
			zap.Int64("in_flight", m.inflight.Load()), zap.Error(err))
		return errors.Join(fmt.Errorf("drain: %w", err), m.srv.Close())
	}
	m.logger.Info("stopped")
	return nil
}

// Wait 阻塞到 ctx 结束或服务异常退出，然后关闭
// 返回服务异常，正常关闭时为 nil
func (m *Manager) Wait(ctx context.Context) error {
	var serveErr error
	select {
	case <-ctx.Done():
		m.logger.Info("shutdown requested", zap.Error(context.Cause(ctx)))
	case serveErr = <-m.errs:
	}
	return errors.Join(serveErr, m.Shutdown(context.WithoutCancel(ctx)))
}

// Addr 启动后返回实际监听地址，否则返回配置地址
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ln != nil {
		return m.ln.Addr().String()
	}
	return m.addr
}

// InFlight 当前正在处理的请求数
func (m *Manager) InFlight() int64 { return m.inflight.Load() }

// Running 是否处于服务状态
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == stateRunning
}
