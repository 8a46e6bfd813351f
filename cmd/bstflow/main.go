// =============================================================================
// bstflow 主入口
// =============================================================================
// 分层决策升级与聚合引擎的命令行与 HTTP 服务入口
//
// 使用方法:
//
//	bstflow run --payload request.json     # 执行一次分析并输出报告
//	bstflow serve --config config.yaml     # 启动 HTTP 服务
//	bstflow migrate up                     # 运行报告表迁移
//	bstflow health --addr http://host:8080 # 健康检查
//	bstflow version                        # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/bstflow/config"
	"github.com/BaSui01/bstflow/engine"
	"github.com/BaSui01/bstflow/internal/metrics"
	"github.com/BaSui01/bstflow/internal/telemetry"
	"github.com/BaSui01/bstflow/store"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "run":
		err = runAnalyze(ctx, os.Args[2:], os.Stdin, os.Stdout)
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "migrate":
		err = runMigrate(os.Args[2:], os.Stdout)
	case "health":
		err = runHealthCheck(os.Args[2:], os.Stdout)
	case "version":
		printVersion(os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// =============================================================================
// 🧩 运行时装配
// =============================================================================

// app 一次进程运行所需的全部依赖
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Providers
	collector *metrics.Collector
	reports   store.ReportStore
	engine    *engine.Engine
}

// newApp 按配置装配遥测、指标、报告存储与引擎
func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	providers, err := telemetry.Init(cfg.Telemetry, logger,
		telemetry.WithAttributes(telemetry.TreeAttributes(cfg.Engine.Levels, cfg.Engine.Fanout)...))
	if err != nil {
		logger.Warn("failed to initialize telemetry, tracing disabled", zap.Error(err))
	}
	a.telemetry = providers

	if cfg.Metrics.Enabled {
		a.collector = metrics.NewCollector(cfg.Metrics.Namespace, logger)
	}

	reports, err := store.New(cfg.Store, logger)
	if err != nil {
		a.close(context.Background())
		return nil, fmt.Errorf("create report store: %w", err)
	}
	if a.collector != nil {
		reports = store.Instrument(reports, cfg.Store.Type, a.collector)
	}
	a.reports = reports

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithTracer(a.telemetry.Tracer("bstflow/engine")),
	}
	if a.collector != nil {
		opts = append(opts, engine.WithRecorder(a.collector))
	}
	if a.reports != nil {
		opts = append(opts, engine.WithStore(a.reports))
	}
	eng, err := engine.New(cfg.Engine, newSimulator(cfg.Simulation).Handle, opts...)
	if err != nil {
		a.close(context.Background())
		return nil, err
	}
	a.engine = eng
	return a, nil
}

// close 释放报告存储并刷新遥测数据
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.reports != nil {
		if err := a.reports.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close report store: %w", err))
		}
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func loadConfig(path string) (*config.Config, error) {
	var opts []config.Option
	if path != "" {
		opts = append(opts, config.FromFile(path))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// ▶️ run 命令
// =============================================================================

func runAnalyze(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	payloadPath := fs.String("payload", "", "JSON payload file passed to every leaf (- for stdin)")
	requestID := fs.String("id", "", "Request ID (generated when empty)")
	debug := fs.Bool("debug", false, "Propagate DEBUG logs into the report")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	// 报告占用 stdout，日志改写到 stderr
	for i, p := range cfg.Log.OutputPaths {
		if p == "stdout" {
			cfg.Log.OutputPaths[i] = "stderr"
		}
	}
	logger, err := initLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	payload, err := readPayload(*payloadPath, stdin)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))

	report, err := a.engine.Analyze(ctx, engine.Request{ID: *requestID, Payload: payload, Debug: *debug})
	if err != nil {
		return err
	}
	if err := a.telemetry.ForceFlush(ctx); err != nil {
		logger.Warn("failed to flush spans", zap.Error(err))
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// readPayload 读取 JSON 负载，路径为空时返回 nil
func readPayload(path string, stdin io.Reader) (any, error) {
	var r io.Reader
	switch path {
	case "":
		return nil, nil
	case "-":
		r = stdin
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open payload: %w", err)
		}
		defer f.Close()
		r = f
	}
	var payload any
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger, err := initLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting bstflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.Int("levels", cfg.Engine.Levels),
		zap.Int("fanout", cfg.Engine.Fanout),
		zap.String("store", cfg.Store.Type),
	)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	srv := NewServer(cfg, a.engine, a.reports, a.collector, logger)
	if err := srv.Start(); err != nil {
		a.close(context.Background())
		return err
	}

	serveErr := srv.Wait(ctx)
	closeErr := a.close(context.Background())
	logger.Info("bstflow stopped")
	return errors.Join(serveErr, closeErr)
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/ready")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	fmt.Fprintln(stdout, "OK")
	return nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "bstflow %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `bstflow - hierarchical decision-escalation and aggregation engine

Usage:
  bstflow <command> [options]

Commands:
  run       Run one analysis with the simulated leaf handler and print the report
  serve     Start the HTTP server
  migrate   Report table migrations (postgres, mysql)
  health    Check server readiness
  version   Show version information
  help      Show this help message

Options for 'run':
  --config <path>    Path to configuration file (YAML)
  --payload <path>   JSON payload passed to every leaf, - for stdin
  --id <id>          Request ID
  --debug            Propagate DEBUG logs into the report

Options for 'serve':
  --config <path>    Path to configuration file (YAML)

Examples:
  bstflow run --payload request.json
  bstflow serve --config /etc/bstflow/config.yaml
  bstflow migrate up --config /etc/bstflow/config.yaml
  bstflow health --addr http://localhost:8080`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	return zapConfig.Build()
}
