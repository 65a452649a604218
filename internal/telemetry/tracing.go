// Package telemetry wires tracing and metrics exporters for the CLI.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const DefaultServiceName = "colony"

type TracingConfig struct {
	ServiceName string
	Enabled     bool
	// Output receives spans as JSON lines; nil discards them.
	Output io.Writer
	// Pretty indents exported spans.
	Pretty bool
}

// Tracing owns a tracer provider and its shutdown.
type Tracing struct {
	Provider trace.TracerProvider
	shutdown func(context.Context) error
}

// NewTracing builds a provider exporting spans through stdouttrace. When
// tracing is disabled the provider is a no-op. The provider is also
// installed as the global one.
func NewTracing(cfg TracingConfig) (*Tracing, error) {
	if !cfg.Enabled {
		tp := noop.NewTracerProvider()
		return &Tracing{Provider: tp, shutdown: func(context.Context) error { return nil }}, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}
	if cfg.Output == nil {
		cfg.Output = io.Discard
	}

	opts := []stdouttrace.Option{stdouttrace.WithWriter(cfg.Output)}
	if cfg.Pretty {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
		)),
	)
	otel.SetTracerProvider(tp)
	return &Tracing{Provider: tp, shutdown: tp.Shutdown}, nil
}

// Shutdown flushes pending spans. Without a deadline on ctx it gives up
// after five seconds.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return t.shutdown(ctx)
}
