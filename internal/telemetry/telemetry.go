// =============================================================================
// bstflow OpenTelemetry 初始化
// =============================================================================
// 分析树的每个节点对应一个 span，根 span 的采样决定向下传递，
// 保证一次分析要么完整保留要么整体丢弃。
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/BaSui01/bstflow/config"
)

// Providers 持有 SDK 的 TracerProvider 与 MeterProvider
// 禁用时两者均为 nil
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Option 初始化选项
type Option func(*options)

type options struct {
	attrs        []attribute.KeyValue
	spanExporter sdktrace.SpanExporter
	skipMetrics  bool
}

// WithAttributes 追加资源属性，例如分析树的层数与扇出
func WithAttributes(attrs ...attribute.KeyValue) Option {
	return func(o *options) { o.attrs = append(o.attrs, attrs...) }
}

// WithSpanExporter 使用给定导出器替代 OTLP，并且不创建指标导出器
func WithSpanExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) {
		o.spanExporter = exp
		o.skipMetrics = true
	}
}

// TreeAttributes 描述分析树形状的资源属性
func TreeAttributes(levels, fanout int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("bstflow.tree.levels", levels),
		attribute.Int("bstflow.tree.fanout", fanout),
	}
}

// Init 初始化 OTel SDK，启用时注册为全局 Provider 并设置 W3C 传播器
func Init(cfg config.TelemetryConfig, logger *zap.Logger, opts ...Option) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "telemetry"))

	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	ctx := context.Background()

	res, err := newResource(ctx, cfg.ServiceName, o.attrs)
	if err != nil {
		return nil, err
	}

	exporter := o.spanExporter
	if exporter == nil {
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
	}

	p := &Providers{
		tp: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
		),
	}

	if !o.skipMetrics {
		metricExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			_ = p.tp.Shutdown(ctx)
			return nil, fmt.Errorf("create metric exporter: %w", err)
		}
		p.mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(p.mp)
	}

	otel.SetTracerProvider(p.tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.Float64("sample_rate", cfg.SampleRate),
		zap.Bool("metrics", p.mp != nil),
	)
	return p, nil
}

func newResource(ctx context.Context, serviceName string, extra []attribute.KeyValue) (*resource.Resource, error) {
	attrs := append([]attribute.KeyValue{
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(buildVersion()),
	}, extra...)
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}
	return res, nil
}

// Tracer 返回命名 Tracer，未启用时为 noop
func (p *Providers) Tracer(name string) trace.Tracer {
	if p == nil || p.tp == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return p.tp.Tracer(name)
}

// ForceFlush 立即导出缓冲中的 span，命令行单次分析退出前调用
func (p *Providers) ForceFlush(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.ForceFlush(ctx)
}

// Shutdown 刷新未导出的数据并关闭导出器
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// buildVersion 从构建信息中读取模块版本，缺失时为 "dev"
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}
