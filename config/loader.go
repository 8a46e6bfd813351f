package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type loadOptions struct {
	path       string
	envPrefix  string
	validators []func(*Config) error
}

// Option 配置 Load
type Option func(*loadOptions)

// FromFile 从 YAML 文件加载，文件不存在时保留默认值
func FromFile(path string) Option {
	return func(o *loadOptions) { o.path = path }
}

// WithEnvPrefix 替换默认的 BSTFLOW 环境变量前缀
func WithEnvPrefix(prefix string) Option {
	return func(o *loadOptions) { o.envPrefix = prefix }
}

// WithValidator 追加在 Validate 之后执行的校验
func WithValidator(v func(*Config) error) Option {
	return func(o *loadOptions) { o.validators = append(o.validators, v) }
}

// Load 按 默认值 → YAML 文件 → 环境变量 的顺序合并配置并校验
func Load(opts ...Option) (*Config, error) {
	o := loadOptions{envPrefix: "BSTFLOW"}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := DefaultConfig()
	if o.path != "" {
		if err := decodeFile(o.path, cfg); err != nil {
			return nil, err
		}
	}
	if err := bindEnv(cfg, o.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	for _, v := range o.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

// decodeFile 未知字段视为错误；出现的切片与映射整体替换默认值
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}
