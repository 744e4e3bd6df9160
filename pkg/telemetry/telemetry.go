// Package telemetry installs the OpenTelemetry tracer provider.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config controls tracing.
type Config struct {
	Enabled     bool
	ServiceName string

	// Writer receives exported spans. Nil means stdout.
	Writer io.Writer
}

// Setup installs a global tracer provider exporting spans to the configured
// writer and returns its shutdown function. When tracing is disabled the
// global no-op provider is left in place.
func Setup(config Config, logger *slog.Logger) (func(context.Context) error, error) {
	if !config.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	w := config.Writer
	if w == nil {
		w = os.Stdout
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", config.ServiceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Info("tracing enabled", slog.String("service", config.ServiceName))
	return tp.Shutdown, nil
}
