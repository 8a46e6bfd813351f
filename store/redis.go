package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/bstflow/types"
)

// =============================================================================
// 💾 Redis 报告存储
// =============================================================================

// RedisOptions Redis 存储选项
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	// KeyPrefix 报告键前缀，索引键为 KeyPrefix + "index"
	KeyPrefix string
	// TTL 报告过期时间，0 表示永久
	TTL time.Duration
}

// RedisStore 报告以 JSON 字符串保存，另维护按创建时间排序的 ZSET 索引
type RedisStore struct {
	client *redis.Client
	opts   RedisOptions
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// NewRedisStore 连接 Redis 并创建存储
func NewRedisStore(opts RedisOptions, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "bstflow:report:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis report store initialized",
		zap.String("addr", opts.Addr),
		zap.String("key_prefix", opts.KeyPrefix),
	)
	return &RedisStore{
		client: client,
		opts:   opts,
		logger: logger.With(zap.String("component", "redis_store")),
	}, nil
}

func (s *RedisStore) key(id string) string { return s.opts.KeyPrefix + id }
func (s *RedisStore) indexKey() string     { return s.opts.KeyPrefix + "index" }

func (s *RedisStore) Save(ctx context.Context, r *types.FinalReport) error {
	if err := validate(r); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("redis store is closed")
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(r.RequestID), data, s.opts.TTL)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(r.CreatedAt.UnixMilli()),
		Member: r.RequestID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("report save failed", zap.String("request_id", r.RequestID), zap.Error(err))
		return fmt.Errorf("redis save failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*types.FinalReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.New("redis store is closed")
	}

	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	var r types.FinalReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return &r, nil
}

// List 按索引倒序读取，已过期的报告从索引中清理
func (s *RedisStore) List(ctx context.Context, limit int) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.New("redis store is closed")
	}

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list failed: %w", err)
	}

	out := make([]Summary, 0, len(ids))
	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var r types.FinalReport
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			s.logger.Warn("skipping undecodable report", zap.String("request_id", ids[i]), zap.Error(err))
			continue
		}
		out = append(out, Summarize(&r))
	}
	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			s.logger.Warn("failed to prune report index", zap.Error(err))
		}
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("redis store is closed")
	}

	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	s.client.ZRem(ctx, s.indexKey(), id)
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close 关闭连接
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("closing redis report store")
	return s.client.Close()
}

// Ping 检查 Redis 连通性
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
