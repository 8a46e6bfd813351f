package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/BaSui01/bstflow/engine"
	"github.com/BaSui01/bstflow/types"
)

// Config bstflow 完整配置，env tag 拼接为 BSTFLOW_<SECTION>_<FIELD>
type Config struct {
	Engine     engine.Config    `yaml:"engine" env:"ENGINE"`
	Server     ServerConfig     `yaml:"server" env:"SERVER"`
	Store      StoreConfig      `yaml:"store" env:"STORE"`
	Log        LogConfig        `yaml:"log" env:"LOG"`
	Metrics    MetricsConfig    `yaml:"metrics" env:"METRICS"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" env:"TELEMETRY"`
	Simulation SimulationConfig `yaml:"simulation" env:"SIMULATION"`
}

// ServerConfig HTTP 服务
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"` // 需覆盖一次完整分析
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"` // 每个客户端 IP，<=0 不限流
	RateLimitBurst  int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// StoreConfig 报告存储
type StoreConfig struct {
	Type     string         `yaml:"type" env:"TYPE"` // none | memory | file | redis | database
	Dir      string         `yaml:"dir" env:"DIR"`
	TTL      time.Duration  `yaml:"ttl" env:"TTL"` // 0 表示永久保留
	Redis    RedisConfig    `yaml:"redis" env:"REDIS"`
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`
}

// RedisConfig redis 报告存储
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	KeyPrefix    string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// DatabaseConfig SQL 报告存储与迁移共用
type DatabaseConfig struct {
	Driver   string `yaml:"driver" env:"DRIVER"` // postgres | mysql | sqlite
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	Name     string `yaml:"name" env:"NAME"` // sqlite 下为文件路径
	SSLMode  string `yaml:"ssl_mode" env:"SSL_MODE"`

	MaxOpenConns        int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns        int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime     time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
	MaxRetries          int           `yaml:"max_retries" env:"MAX_RETRIES"` // 写入遇到死锁等可重试错误时
}

// DSN 按驱动拼接连接串，未知驱动返回空串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
			d.User, d.Password, d.Host, d.Port, d.Name)
	case "sqlite":
		return d.Name
	}
	return ""
}

// LogConfig zap 日志
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"` // json | console
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// MetricsConfig Prometheus 指标
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// TelemetryConfig OTLP 追踪与指标导出
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// SimulationConfig 内置模拟叶子处理器，行为完全由配置决定
type SimulationConfig struct {
	// 各质量档位每次调用消耗的 Token
	TokensFull    int64 `yaml:"tokens_full" env:"TOKENS_FULL"`
	TokensReduced int64 `yaml:"tokens_reduced" env:"TOKENS_REDUCED"`
	TokensMinimal int64 `yaml:"tokens_minimal" env:"TOKENS_MINIMAL"`

	Confidence     float64            `yaml:"confidence" env:"CONFIDENCE"`
	LeafConfidence map[string]float64 `yaml:"leaf_confidence" env:"LEAF_CONFIDENCE"`
	FailingLeaves  []string           `yaml:"failing_leaves" env:"FAILING_LEAVES"`
	FlakyLeaves    []string           `yaml:"flaky_leaves" env:"FLAKY_LEAVES"` // 首次尝试瞬时失败
	Latency        time.Duration      `yaml:"latency" env:"LATENCY"`
}

var (
	storeTypes = []string{"none", "memory", "file", "redis", "database"}
	dbDrivers  = []string{"postgres", "mysql", "sqlite"}
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"json", "console"}
)

// Validate 一次性返回全部 ConfigError
func (c *Config) Validate() error {
	var errs []error
	bad := func(field, reason string) {
		errs = append(errs, &types.ConfigError{Field: field, Reason: reason})
	}
	oneOf := func(field, value string, allowed []string) {
		if !slices.Contains(allowed, value) {
			bad(field, "must be one of "+strings.Join(allowed, ", "))
		}
	}

	if err := c.Engine.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		bad("server.http_port", "must be within 1-65535")
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst <= 0 {
		bad("server.rate_limit_burst", "must be positive when rate limiting is enabled")
	}

	oneOf("store.type", c.Store.Type, storeTypes)
	switch c.Store.Type {
	case "file":
		if c.Store.Dir == "" {
			bad("store.dir", "required for file store")
		}
	case "redis":
		if c.Store.Redis.Addr == "" {
			bad("store.redis.addr", "required for redis store")
		}
	case "database":
		oneOf("store.database.driver", c.Store.Database.Driver, dbDrivers)
	}

	oneOf("log.level", c.Log.Level, logLevels)
	oneOf("log.format", c.Log.Format, logFormats)

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		bad("telemetry.sample_rate", "must be within [0, 1]")
	}
	if c.Simulation.Confidence < 0 || c.Simulation.Confidence > 1 {
		bad("simulation.confidence", "must be within [0, 1]")
	}

	return errors.Join(errs...)
}
