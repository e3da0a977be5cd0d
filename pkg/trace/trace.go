// Package trace configures OpenTelemetry tracing for the service and offers
// span helpers for the transcription path.
//
// Tracing is off unless an exporter is configured; spans started before
// Initialize, or with the "none" exporter, are no-ops.
package trace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies spans produced by this module.
const TracerName = "github.com/realtime-ai/asr-indicator"

// Exporter types.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// ErrAlreadyInitialized is returned when a provider is installed twice.
var ErrAlreadyInitialized = errors.New("tracer provider already initialized")

// Config selects where spans go.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// ExporterType is one of ExporterNone, ExporterStdout or ExporterOTLP.
	ExporterType string
	// OTLPEndpoint is the collector's gRPC address, e.g. "localhost:4317".
	OTLPEndpoint string
	// SamplingRate is the fraction of root spans kept, in [0, 1].
	SamplingRate float64
}

// DefaultConfig returns a configuration with tracing disabled.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "asr-indicator",
		ServiceVersion: "0.1.0",
		ExporterType:   ExporterNone,
		OTLPEndpoint:   "localhost:4317",
		SamplingRate:   1.0,
	}
}

// global holds the installed provider. Guarded by mu.
var global struct {
	mu       sync.RWMutex
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// Initialize installs the global tracer provider for cfg. With ExporterType
// "none" it leaves the no-op tracer in place.
func Initialize(ctx context.Context, cfg Config, logger *slog.Logger) error {
	exporter, err := newExporter(ctx, cfg)
	if err != nil || exporter == nil {
		return err
	}
	if err := InitializeWithExporter(cfg, exporter); err != nil {
		return err
	}
	if logger != nil {
		logger.Info("tracing enabled",
			"component", "trace",
			"exporter", cfg.ExporterType,
			"sampling_rate", cfg.SamplingRate)
	}
	return nil
}

// newExporter returns nil, nil when tracing is disabled.
func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case "", ExporterNone:
		return nil, nil
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("stdout exporter: %w", err)
		}
		return exp, nil
	case ExporterOTLP:
		exp, err := otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		))
		if err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unsupported exporter type %q", cfg.ExporterType)
	}
}

// InitializeWithExporter installs a batching provider that writes to
// exporter. Tests pass an in-memory exporter.
func InitializeWithExporter(cfg Config, exporter sdktrace.SpanExporter) error {
	global.mu.Lock()
	defer global.mu.Unlock()
	if global.provider != nil {
		return ErrAlreadyInitialized
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return fmt.Errorf("trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	global.provider = tp
	global.tracer = tp.Tracer(TracerName)
	return nil
}

// ForceFlush exports every span that has ended.
func ForceFlush(ctx context.Context) error {
	global.mu.RLock()
	defer global.mu.RUnlock()
	if global.provider == nil {
		return nil
	}
	return global.provider.ForceFlush(ctx)
}

// Shutdown flushes and removes the provider. It is safe to call when
// tracing was never enabled.
func Shutdown(ctx context.Context) error {
	global.mu.Lock()
	defer global.mu.Unlock()
	if global.provider == nil {
		return nil
	}

	err := global.provider.Shutdown(ctx)
	global.provider, global.tracer = nil, nil
	if err != nil {
		return fmt.Errorf("tracer provider shutdown: %w", err)
	}
	return nil
}

// GetTracer returns the installed tracer, or the global no-op one.
func GetTracer() trace.Tracer {
	global.mu.RLock()
	defer global.mu.RUnlock()
	if global.tracer != nil {
		return global.tracer
	}
	return otel.Tracer(TracerName)
}

// StartSpan starts a span on the module tracer.
func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, spanName, opts...)
}
