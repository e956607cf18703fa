// Package observability wires OpenTelemetry trace export into Genkit's
// tracer provider. Spans for model calls and tool execution are produced by
// Genkit itself; this package only attaches an OTLP exporter.
package observability

import (
	"context"
	"os"
	"time"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/cormorant-ai/cormorant/internal/config"
	"github.com/cormorant-ai/cormorant/internal/log"
)

const shutdownTimeout = 5 * time.Second

// SetupTracing registers an OTLP HTTP span processor on Genkit's tracer
// provider and returns a shutdown function that flushes pending spans. With
// no endpoint configured, tracing stays off and the returned function is a
// no-op. Must run before genkit.Init so the processor sees every span.
func SetupTracing(ctx context.Context, cfg config.OtelConfig, logger log.Logger) func() {
	if cfg.Endpoint == "" {
		return func() {}
	}

	// Genkit's TracerProvider reads these at span creation time.
	// SAFETY: os.Setenv is not concurrent-safe, but this runs exactly once
	// during startup before goroutines are spawned.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		logger.Warn("creating OTLP exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled",
		"endpoint", cfg.Endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	shutdown := tracing.TracerProvider().Shutdown

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}
