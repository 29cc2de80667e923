// Package telemetry initialises OpenTelemetry tracing.
package telemetry

import (
	"context"
	"fmt"

	"docchat-go/internal/config"
	"docchat-go/pkg/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns the named tracer from the global provider. Without InitTracer it is a no-op.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// InitTracer installs an OTLP/gRPC exporting tracer provider and returns its shutdown func.
// When tracing is disabled the returned func does nothing.
func InitTracer(ctx context.Context, cfg config.TelemetryConfig) (func(context.Context), error) {
	if !cfg.Enabled {
		return func(context.Context) {}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)

	log.Infof("[Telemetry] tracer initialized for service %s, endpoint %s", cfg.ServiceName, cfg.OTLPEndpoint)

	return func(ctx context.Context) {
		if err := tp.Shutdown(ctx); err != nil {
			log.Errorf("[Telemetry] failed to shutdown tracer: %v", err)
		}
	}, nil
}
