package store

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/bstflow/config"
)

// New 按配置创建报告存储，type 为 none 时返回 nil
func New(cfg config.StoreConfig, logger *zap.Logger) (ReportStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryStore(cfg.TTL), nil
	case "file":
		return NewFileStore(cfg.Dir, logger)
	case "redis":
		return NewRedisStore(RedisOptions{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			KeyPrefix:    cfg.Redis.KeyPrefix,
			TTL:          cfg.TTL,
		}, logger)
	case "database":
		return OpenSQL(cfg.Database, cfg.TTL, logger)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
