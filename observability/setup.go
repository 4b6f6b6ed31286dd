// Package observability wires the OpenTelemetry SDK: a TracerProvider and
// MeterProvider exporting over OTLP/gRPC, and a slog.Handler backed by an
// OTel LoggerProvider so every structured log line doubles as a log
// record an OTLP-speaking backend can correlate with its trace. Setup is
// a no-op when OTEL_EXPORTER_OTLP_ENDPOINT isn't set — a runtime with no
// collector configured should start cleanly, not fail or spam exporter
// connection errors.
package observability

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Providers holds the three signal providers Setup installs, plus the
// slog.Logger wired to emit through the log provider. Shutdown flushes
// and closes all three together, in the order spec.md §5's shutdown flow
// expects observability to drain: traces and metrics first, logs last so
// the shutdown sequence's own log lines still make it out.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
	LoggerProvider *log.LoggerProvider
	Logger         *slog.Logger
	enabled        bool
}

// Setup reads OTEL_EXPORTER_OTLP_ENDPOINT and, when set, configures all
// three OTel signal providers against it over gRPC, installing the
// tracer/meter providers as process globals via otel.SetTracerProvider /
// otel.SetMeterProvider. When unset, Setup returns a Providers wrapping
// slog's default handler and no-op shutdown — safe to call unconditionally
// at process start.
func Setup(ctx context.Context, serviceName string) (*Providers, error) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return &Providers{Logger: slog.Default(), enabled: false}, nil
	}

	resource, err := sdkresource.New(ctx,
		sdkresource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
		sdkresource.WithHost(),
		sdkresource.WithProcess(),
	)
	if err != nil {
		return nil, err
	}

	tp, err := newTracerProvider(ctx, resource)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)

	mp, err := newMeterProvider(ctx, resource)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(mp)

	lp, err := newLoggerProvider(ctx, resource)
	if err != nil {
		return nil, err
	}

	logger := otelslog.NewLogger(serviceName, otelslog.WithLoggerProvider(lp))

	return &Providers{
		TracerProvider: tp,
		MeterProvider:  mp,
		LoggerProvider: lp,
		Logger:         logger,
		enabled:        true,
	}, nil
}

// Enabled reports whether OTLP export is actually wired, for call sites
// that want to skip span/metric work entirely rather than pay for no-op
// instrumentation calls.
func (p *Providers) Enabled() bool {
	return p != nil && p.enabled
}

// Shutdown flushes and closes every provider Setup installed, bounded by
// ctx's deadline (the host is expected to pass a context carrying the same
// drain deadline spec.md §5 gives the rest of shutdown).
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil || !p.enabled {
		return nil
	}
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(p.TracerProvider.Shutdown(ctx))
	record(p.MeterProvider.Shutdown(ctx))
	record(p.LoggerProvider.Shutdown(ctx))
	return firstErr
}

// Tracer returns a named tracer from the installed TracerProvider, or a
// no-op tracer when observability isn't configured.
func (p *Providers) Tracer(name string) trace.Tracer {
	if p == nil || !p.enabled {
		return trace.NewNoopTracerProvider().Tracer(name)
	}
	return p.TracerProvider.Tracer(name)
}

func newTracerProvider(ctx context.Context, res *sdkresource.Resource) (*sdktrace.TracerProvider, error) {
	exp, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}

func newMeterProvider(ctx context.Context, res *sdkresource.Resource) (*metric.MeterProvider, error) {
	exp, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		return nil, err
	}
	return metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exp, metric.WithInterval(15*time.Second))),
		metric.WithResource(res),
	), nil
}

func newLoggerProvider(ctx context.Context, res *sdkresource.Resource) (*log.LoggerProvider, error) {
	exp, err := otlploggrpc.New(ctx)
	if err != nil {
		return nil, err
	}
	return log.NewLoggerProvider(
		log.WithProcessor(log.NewBatchProcessor(exp)),
		log.WithResource(res),
	), nil
}
