// Package telemetry provides OpenTelemetry instrumentation
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"
)

// Config holds telemetry configuration
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	MetricsPort    int
}

// Provider manages OpenTelemetry providers
type Provider struct {
	config         Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	// Admission/check metrics
	checkCounter    metric.Int64Counter
	checkDuration   metric.Float64Histogram
	rowCounter      metric.Int64Counter
	denialCounter   metric.Int64Counter
	activeContexts  metric.Int64UpDownCounter
}

// NewProvider creates a new telemetry provider
func NewProvider(cfg Config) (*Provider, error) {
	ctx := context.Background()

	// Create resource with service info
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Setup trace exporter — use TLS by default, plaintext only when OTEL_INSECURE=true
	exporterOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
	}
	if strings.EqualFold(os.Getenv("OTEL_INSECURE"), "true") {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	} else {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}

	traceExporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	// Setup tracer provider
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Setup Prometheus exporter for metrics
	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	p := &Provider{
		config:         cfg,
		tracerProvider: tracerProvider,
		meterProvider:  meterProvider,
		tracer:         tracerProvider.Tracer(cfg.ServiceName),
		meter:          meterProvider.Meter(cfg.ServiceName),
	}

	// Initialize metrics
	if err := p.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return p, nil
}

func (p *Provider) initMetrics() error {
	var err error

	p.checkCounter, err = p.meter.Int64Counter(
		"policy_checks_total",
		metric.WithDescription("Total number of policy checks (Finalize/admission evaluations) run"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return err
	}

	p.checkDuration, err = p.meter.Float64Histogram(
		"policy_check_duration_seconds",
		metric.WithDescription("Policy check duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	p.rowCounter, err = p.meter.Int64Counter(
		"policy_rows_checked_total",
		metric.WithDescription("Total rows examined across all policy checks"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return err
	}

	p.denialCounter, err = p.meter.Int64Counter(
		"policy_denials_total",
		metric.WithDescription("Total PrivacyError/admission denials"),
		metric.WithUnit("{denial}"),
	)
	if err != nil {
		return err
	}

	p.activeContexts, err = p.meter.Int64UpDownCounter(
		"monitor_active_contexts",
		metric.WithDescription("Currently open monitor contexts"),
		metric.WithUnit("{context}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Tracer returns the tracer instance
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Meter returns the meter instance
func (p *Provider) Meter() metric.Meter {
	return p.meter
}

// Shutdown gracefully shuts down telemetry providers.
// Both tracer and meter are shut down regardless of individual failures.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// CheckMetrics records metrics for one Finalize/admission evaluation.
type CheckMetrics struct {
	Operation string // "finalize", "admission:transform", "admission:udf", "admission:agg"
	Rows      int64
	Duration  time.Duration
	Allowed   bool
	ErrorKind string
}

// RecordCheck records metrics for a completed policy check.
func (p *Provider) RecordCheck(ctx context.Context, m CheckMetrics) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", m.Operation),
		attribute.Bool("allowed", m.Allowed),
	}

	p.checkCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	p.checkDuration.Record(ctx, m.Duration.Seconds(), metric.WithAttributes(attrs...))

	if m.Rows > 0 {
		p.rowCounter.Add(ctx, m.Rows, metric.WithAttributes(attrs...))
	}

	if !m.Allowed {
		denyAttrs := make([]attribute.KeyValue, len(attrs), len(attrs)+1)
		copy(denyAttrs, attrs)
		denyAttrs = append(denyAttrs, attribute.String("error_kind", m.ErrorKind))
		p.denialCounter.Add(ctx, 1, metric.WithAttributes(denyAttrs...))
	}
}

// StartContext marks a monitor context opening.
func (p *Provider) StartContext(ctx context.Context) {
	p.activeContexts.Add(ctx, 1)
}

// EndContext marks a monitor context being dropped.
func (p *Provider) EndContext(ctx context.Context) {
	p.activeContexts.Add(ctx, -1)
}

// StartSpan starts a new span
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, opts...)
}
