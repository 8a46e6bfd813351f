package config

import (
	"time"

	"github.com/BaSui01/bstflow/engine"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Engine:     engine.DefaultConfig(),
		Server:     DefaultServerConfig(),
		Store:      DefaultStoreConfig(),
		Log:        DefaultLogConfig(),
		Metrics:    DefaultMetricsConfig(),
		Telemetry:  DefaultTelemetryConfig(),
		Simulation: DefaultSimulationConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    10,
		RateLimitBurst:  20,
	}
}

// DefaultStoreConfig 返回默认存储配置：进程内存储
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type: "memory",
		Dir:  "reports",
		TTL:  24 * time.Hour,
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			MinIdleConns: 2,
			KeyPrefix:    "bstflow:report:",
		},
		Database: DatabaseConfig{
			Driver:              "postgres",
			Host:                "localhost",
			Port:                5432,
			User:                "bstflow",
			Name:                "bstflow",
			SSLMode:             "disable",
			MaxOpenConns:        10,
			MaxIdleConns:        5,
			ConnMaxLifetime:     time.Hour,
			HealthCheckInterval: 30 * time.Second,
			MaxRetries:          3,
		},
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enabled: true, Namespace: "bstflow"}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "bstflow",
		SampleRate:   0.1,
	}
}

// DefaultSimulationConfig 返回默认模拟处理器配置
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		TokensFull:    100,
		TokensReduced: 40,
		TokensMinimal: 10,
		Confidence:    0.9,
		Latency:       20 * time.Millisecond,
	}
}
