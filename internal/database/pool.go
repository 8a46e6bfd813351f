package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrPoolClosed 连接池已关闭
var ErrPoolClosed = errors.New("database pool is closed")

// =============================================================================
// 🗄️ 报告库连接池
// =============================================================================

// Pool 持有 gorm 实例与底层 sql.DB，负责连接池参数、后台探活与事务重试
type Pool struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	config PoolConfig
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
	done   chan struct{}
}

// PoolConfig 连接池配置，零值字段保留驱动默认
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// 健康检查间隔，0 表示不启动后台探活
	HealthCheckInterval time.Duration

	// 可重试错误的最大尝试次数，<=0 按 1 次处理
	MaxRetries int
	// 首次重试前的等待，之后按 2 倍递增
	RetryBackoff time.Duration
}

// DefaultPoolConfig 返回默认连接池配置
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        5,
		MaxOpenConns:        10,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
		MaxRetries:          3,
		RetryBackoff:        100 * time.Millisecond,
	}
}

// NewPool 包装已打开的 gorm 连接并应用连接池参数
func NewPool(db *gorm.DB, config PoolConfig, logger *zap.Logger) (*Pool, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}

	p := &Pool{
		db:     db,
		sqlDB:  sqlDB,
		config: config,
		logger: logger.With(zap.String("component", "db_pool")),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		go p.healthCheckLoop()
	} else {
		close(p.done)
	}

	p.logger.Debug("database pool initialized",
		zap.Int("max_idle_conns", config.MaxIdleConns),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Duration("health_check_interval", config.HealthCheckInterval),
	)
	return p, nil
}

// DB 返回 gorm 实例
func (p *Pool) DB() *gorm.DB {
	return p.db
}

// Ping 检查数据库连接
func (p *Pool) Ping(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	return p.sqlDB.PingContext(ctx)
}

// Close 停止后台探活并关闭连接，可重复调用
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stop)
	p.mu.Unlock()

	<-p.done
	return p.sqlDB.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func (p *Pool) healthCheckLoop() {
	defer close(p.done)
	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := p.sqlDB.PingContext(ctx)
		cancel()
		if err != nil {
			p.logger.Error("database health check failed", zap.Error(err))
			continue
		}
		stats := p.sqlDB.Stats()
		p.logger.Debug("database health check passed",
			zap.Int("open_connections", stats.OpenConnections),
			zap.Int("in_use", stats.InUse),
			zap.Int("idle", stats.Idle),
		)
	}
}

// =============================================================================
// 📊 统计信息
// =============================================================================

// PoolStats 连接池统计
type PoolStats struct {
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
}

// Stats 返回连接池统计
func (p *Pool) Stats() PoolStats {
	s := p.sqlDB.Stats()
	return PoolStats{
		MaxOpenConnections: s.MaxOpenConnections,
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		WaitCount:          s.WaitCount,
		WaitDuration:       s.WaitDuration,
	}
}

// =============================================================================
// 🔄 事务
// =============================================================================

// TransactionFunc 事务回调
type TransactionFunc func(tx *gorm.DB) error

// WithTransaction 在单个事务中执行 fn，fn 返回错误时回滚
func (p *Pool) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrPoolClosed
	}
	return p.db.WithContext(ctx).Transaction(fn)
}

// WithRetry 执行事务，死锁、序列化冲突与断连按指数退避重试
func (p *Pool) WithRetry(ctx context.Context, fn TransactionFunc) error {
	attempts := max(p.config.MaxRetries, 1)
	backoff := p.config.RetryBackoff

	var lastErr error
	for i := range attempts {
		err := p.WithTransaction(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) || i == attempts-1 {
			break
		}

		p.logger.Warn("transaction failed, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if attempts > 1 && IsRetryable(lastErr) {
		return fmt.Errorf("transaction failed after %d attempts: %w", attempts, lastErr)
	}
	return lastErr
}

// IsRetryable 判断错误是否值得在新事务中重试
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"deadlock",
		"serialization failure",
		"40001", // postgres serialization_failure
		"connection reset",
		"connection refused",
		"broken pipe",
		"lock wait timeout",
		"lock timeout",
		"database is locked", // sqlite busy
		"bad connection",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
