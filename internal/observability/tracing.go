// Package observability provides OpenTelemetry trace export for the agent.
//
// Spans are emitted by Genkit's own TracerProvider; this package only
// attaches an OTLP HTTP exporter to it. The collector endpoint is expected
// to be a local agent or gateway, so export uses plain HTTP. The tracing
// project id and API key travel as request headers for collectors that
// multiplex tenants.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/bqchat/bqchat/internal/config"
)

// SetupTracing registers an OTLP HTTP exporter with Genkit's TracerProvider.
// Returns a shutdown function that flushes pending spans. Export setup
// failures disable tracing rather than failing startup.
func SetupTracing(ctx context.Context, cfg config.TracingConfig, logger *slog.Logger) (shutdown func(context.Context) error, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = config.DefaultTracingEndpoint
	}

	// Genkit's TracerProvider reads resource attributes from the environment.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	headers := map[string]string{}
	if cfg.Project != "" {
		headers["x-tracing-project-id"] = cfg.Project
	}
	if cfg.APIKey != "" {
		headers["x-api-key"] = cfg.APIKey
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	}
	if len(headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(headers))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		logger.Warn("failed to create trace exporter, tracing disabled", "error", err)
		return func(context.Context) error { return nil }, nil
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	return tracing.TracerProvider().Shutdown, nil
}
