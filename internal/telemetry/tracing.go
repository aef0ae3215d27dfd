package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// InitTracer wires an OTLP-over-gRPC exporter and installs it as the global
// tracer provider for the spans StartCallSpan and StartStageSpan open.
// Grounded verbatim on
// coreengine/observability/tracing.go's InitTracer, renamed for vortex's
// service identity.
func InitTracer(serviceName, collectorEndpoint string) (func(context.Context) error, error) {
	ctx := context.Background()
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(collectorEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("dev"),
			semconv.DeploymentEnvironment("default"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// Tracer returns the vortex call-engine tracer.
func Tracer() trace.Tracer {
	return otel.Tracer("vortex/call")
}

// StartCallSpan starts a span for one Call execution, named by route+kind so
// spans group naturally by backend in a trace viewer.
func StartCallSpan(ctx context.Context, route, kind string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, fmt.Sprintf("call %s:%s", kind, route))
}

// StartStageSpan starts a child span for one suspension point within a Call
// (dns, connect, tls, write, roundtrip, read).
func StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "call.stage."+stage)
}
