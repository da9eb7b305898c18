// Package observability wires OpenTelemetry tracing and metrics for telegate's
// own operation: how many telemetry items were sent, skipped or failed, and
// how long backend calls took.
package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"telegate/internal/logging"
)

const instrumentationName = "telegate"

// Dispatch outcomes.
const (
	OutcomeSent    = "sent"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // host:port of a gRPC collector
	SampleRate     float64
	Enabled        bool
	Insecure       bool
}

// DefaultConfig returns a disabled configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "telegate",
		ServiceVersion: "dev",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
	}
}

// Provider owns the tracer and meter used across telegate.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *logging.Logger

	dispatchCounter metric.Int64Counter
	callDuration    metric.Float64Histogram
}

// New creates a provider. When disabled every instrument is a no-op.
func New(ctx context.Context, cfg *Config, logger *logging.Logger) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithComponent("observability")

	if !cfg.Enabled {
		logger.Debug("observability disabled")
		return NewWithProviders(tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider(), logger)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp, err := newTracerProvider(ctx, cfg, res)
	if err != nil {
		return nil, fmt.Errorf("init trace provider: %w", err)
	}
	mp, err := newMeterProvider(ctx, cfg, res)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("init metric provider: %w", err)
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p, err := NewWithProviders(tp, mp, logger)
	if err != nil {
		return nil, err
	}
	p.tracerProvider = tp
	p.meterProvider = mp

	logger.Info("observability initialized",
		"service", cfg.ServiceName,
		"endpoint", cfg.OTLPEndpoint,
		"sample_rate", cfg.SampleRate,
		"insecure", cfg.Insecure,
	)
	return p, nil
}

// NewWithProviders builds a provider over existing tracer and meter
// providers. The caller keeps ownership of them.
func NewWithProviders(tp trace.TracerProvider, mp metric.MeterProvider, logger *logging.Logger) (*Provider, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	p := &Provider{
		tracer: tp.Tracer(instrumentationName),
		meter:  mp.Meter(instrumentationName),
		logger: logger,
	}

	var err error
	p.dispatchCounter, err = p.meter.Int64Counter("telegate.dispatch.total",
		metric.WithDescription("Telemetry items handled, by kind and outcome"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create dispatch counter: %w", err)
	}

	p.callDuration, err = p.meter.Float64Histogram("telegate.backend.duration",
		metric.WithDescription("Duration of synchronous backend calls"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	return p, nil
}

// Noop returns a provider whose instruments record nothing.
func Noop() *Provider {
	p, _ := NewWithProviders(tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider(), nil)
	return p
}

func newTracerProvider(ctx context.Context, cfg *Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithSampler(sampler),
	), nil
}

func newMeterProvider(ctx context.Context, cfg *Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
	), nil
}

// Tracer returns the telegate tracer.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Meter returns the telegate meter.
func (p *Provider) Meter() metric.Meter { return p.meter }

// RecordDispatch counts one telemetry item of kind with its outcome.
func (p *Provider) RecordDispatch(ctx context.Context, kind, outcome string) {
	p.dispatchCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

// TrackCall starts a span for a backend call. The returned function ends the
// span and records the call duration and outcome.
func (p *Provider) TrackCall(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)

	return ctx, func(err error) {
		all := append([]attribute.KeyValue{attribute.String("call", name)}, attrs...)
		if err != nil {
			span.RecordError(err)
			all = append(all, attribute.Bool("error", true))
		}
		p.callDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(all...))
		span.End()
	}
}

// Shutdown flushes and stops providers created by New.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown trace provider: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown metric provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
