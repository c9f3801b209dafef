// Package otel wires OpenTelemetry tracing for backend calls.
package otel

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourorg/predictpool-client/internal/config"
)

const (
	instrumentationName = "github.com/yourorg/predictpool-client"
	defaultServiceName  = "predictpool-client"
	shutdownTimeout     = 5 * time.Second
)

// InitTracer installs a global tracer provider exporting backend spans to the
// configured OTLP endpoint. It returns a shutdown func that flushes pending
// spans, which is a no-op when tracing is disabled.
func InitTracer(cfg config.TelemetryConfig) func() {
	if cfg.OtelEndpoint == "" {
		return func() {}
	}

	exporter, err := otlptrace.New(context.Background(), otlptracehttp.NewClient(clientOptions(cfg)...))
	if err != nil {
		logrus.WithError(err).Warn("Tracing disabled, failed to create OTLP exporter")
		return func() {}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(Sampler(cfg.SampleRatio)),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName(cfg)),
		)),
	)
	otel.SetTracerProvider(tp)
	logrus.WithFields(logrus.Fields{
		"endpoint":     cfg.OtelEndpoint,
		"sample_ratio": cfg.SampleRatio,
	}).Info("Tracing enabled")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logrus.WithError(err).Debug("Tracer shutdown did not flush all spans")
		}
	}
}

// Sampler keeps the given fraction of new traces and follows the parent's
// decision otherwise. A ratio of 1 or more samples everything, 0 or less
// nothing.
func Sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

func clientOptions(cfg config.TelemetryConfig) []otlptracehttp.Option {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.OtelEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts
}

func serviceName(cfg config.TelemetryConfig) string {
	if cfg.ServiceName == "" {
		return defaultServiceName
	}
	return cfg.ServiceName
}

// Tracer returns the tracer used by the client's packages.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// RecordError marks the span in ctx as failed.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
