package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/bstflow/config"
	"github.com/BaSui01/bstflow/internal/database"
	"github.com/BaSui01/bstflow/internal/migration"
	"github.com/BaSui01/bstflow/types"
)

// =============================================================================
// 🗄️ SQL 报告存储
// =============================================================================

// reportRecord 报告表行，列定义与 internal/migration 中的迁移文件保持一致
type reportRecord struct {
	RequestID      string     `gorm:"column:request_id;primaryKey;size:64"`
	Status         string     `gorm:"column:status;size:16;not null;index:idx_reports_status_created,priority:1"`
	TotalTokens    int64      `gorm:"column:total_tokens;not null"`
	Escalations    int        `gorm:"column:escalations;not null"`
	Recommendation string     `gorm:"column:recommendation;not null"`
	Body           string     `gorm:"column:body;type:text;not null"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null;index:idx_reports_status_created,priority:2"`
	ExpiresAt      *time.Time `gorm:"column:expires_at"`
}

func (reportRecord) TableName() string { return "reports" }

// SQLStore 基于 gorm 的报告存储
type SQLStore struct {
	pool   *database.Pool
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// OpenSQL 按配置打开数据库、配置连接池并准备表结构
// postgres 与 mysql 通过版本化迁移建表，sqlite 使用 AutoMigrate
func OpenSQL(cfg config.DatabaseConfig, ttl time.Duration, logger *zap.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dsn := cfg.DSN()

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, &types.ConfigError{Field: "store.database.driver", Reason: "unsupported driver " + cfg.Driver}
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	pool, err := database.NewPool(db, database.PoolConfig{
		MaxOpenConns:        cfg.MaxOpenConns,
		MaxIdleConns:        cfg.MaxIdleConns,
		ConnMaxLifetime:     cfg.ConnMaxLifetime,
		HealthCheckInterval: cfg.HealthCheckInterval,
		MaxRetries:          cfg.MaxRetries,
		RetryBackoff:        100 * time.Millisecond,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Driver == "sqlite" {
		if err := db.AutoMigrate(&reportRecord{}); err != nil {
			pool.Close()
			return nil, fmt.Errorf("auto migrate reports: %w", err)
		}
	} else {
		dbType, _ := migration.ParseDatabaseType(cfg.Driver)
		m, err := migration.NewMigrator(migration.Config{DatabaseType: dbType, DSN: dsn}, logger)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("create migrator: %w", err)
		}
		upErr := m.Up()
		closeErr := m.Close()
		if err := errors.Join(upErr, closeErr); err != nil {
			pool.Close()
			return nil, err
		}
	}

	logger.Info("sql report store initialized",
		zap.String("driver", cfg.Driver),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
	)
	return NewSQLStore(pool, ttl, logger), nil
}

// NewSQLStore 基于已建好表结构的连接池创建存储
func NewSQLStore(pool *database.Pool, ttl time.Duration, logger *zap.Logger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{
		pool:   pool,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With(zap.String("component", "sql_store")),
	}
}

// Save 以 request_id 为键写入，已存在时整体覆盖
func (s *SQLStore) Save(ctx context.Context, r *types.FinalReport) error {
	if err := validate(r); err != nil {
		return err
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	rec := reportRecord{
		RequestID:      r.RequestID,
		Status:         string(r.Status),
		TotalTokens:    r.TokenUsage.Total,
		Escalations:    len(r.EscalationTrail),
		Recommendation: r.Recommendation,
		Body:           string(body),
		CreatedAt:      r.CreatedAt,
	}
	if s.ttl > 0 {
		exp := s.now().Add(s.ttl)
		rec.ExpiresAt = &exp
	}
	err = s.pool.WithRetry(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
	})
	if err != nil {
		s.logger.Error("report save failed", zap.String("request_id", r.RequestID), zap.Error(err))
		return fmt.Errorf("sql save failed: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*types.FinalReport, error) {
	var rec reportRecord
	err := s.pool.DB().WithContext(ctx).Where("request_id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sql get failed: %w", err)
	}
	if rec.ExpiresAt != nil && s.now().After(*rec.ExpiresAt) {
		return nil, ErrNotFound
	}
	var r types.FinalReport
	if err := json.Unmarshal([]byte(rec.Body), &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return &r, nil
}

func (s *SQLStore) List(ctx context.Context, limit int) ([]Summary, error) {
	q := s.pool.DB().WithContext(ctx).
		Model(&reportRecord{}).
		Select("request_id", "status", "total_tokens", "escalations", "recommendation", "created_at").
		Where("expires_at IS NULL OR expires_at > ?", s.now()).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []reportRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("sql list failed: %w", err)
	}
	out := make([]Summary, len(recs))
	for i, rec := range recs {
		out[i] = Summary{
			RequestID:      rec.RequestID,
			Status:         types.Status(rec.Status),
			TotalTokens:    rec.TotalTokens,
			Escalations:    rec.Escalations,
			Recommendation: rec.Recommendation,
			CreatedAt:      rec.CreatedAt,
		}
	}
	return out, nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res := s.pool.DB().WithContext(ctx).Where("request_id = ?", id).Delete(&reportRecord{})
	if res.Error != nil {
		return fmt.Errorf("sql delete failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close 关闭底层连接池
func (s *SQLStore) Close() error {
	return s.pool.Close()
}

// Ping 检查数据库连通性
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
