package tracing

import (
	"context"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
)

var Module = fx.Module("tracing",
	fx.Provide(
		NewTracing,
	),
)

type TracingParams struct {
	fx.In

	Viper *viper.Viper
	Lc    fx.Lifecycle
}

type TracingResult struct {
	fx.Out

	Tracing *Tracing
}

type Tracing struct {
	TracerProvider trace.TracerProvider
	Propagator     propagation.TextMapPropagator
}

// NewTracing exports spans to stdout when tracing.enabled is set and
// otherwise installs a no-op provider. Trace context is always propagated.
func NewTracing(p TracingParams) (TracingResult, error) {
	p.Viper.SetDefault("tracing.enabled", false)

	propagator := newPropagator()

	if !p.Viper.GetBool("tracing.enabled") {
		return TracingResult{
			Tracing: &Tracing{
				TracerProvider: noop.NewTracerProvider(),
				Propagator:     propagator,
			},
		}, nil
	}

	tracerProvider, err := newTracerProvider(p.Viper)
	if err != nil {
		return TracingResult{}, err
	}

	p.Lc.Append(fx.StopHook(func(ctx context.Context) error {
		return tracerProvider.Shutdown(ctx)
	}))

	return TracingResult{
		Tracing: &Tracing{
			TracerProvider: tracerProvider,
			Propagator:     propagator,
		},
	}, nil
}

func NewNoopTracing() *Tracing {
	return &Tracing{
		TracerProvider: noop.NewTracerProvider(),
		Propagator:     propagation.TraceContext{},
	}
}

func newTracerProvider(v *viper.Viper) (*sdktrace.TracerProvider, error) {
	stdOutExporter, err := stdouttrace.New(
		stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	serviceName := v.GetString("tracing.serviceName")

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(stdOutExporter),
		sdktrace.WithResource(res),
	)

	// register default
	otel.SetTracerProvider(tracerProvider)

	return tracerProvider, nil
}

func newPropagator() propagation.TextMapPropagator {
	propagator := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)

	otel.SetTextMapPropagator(propagator)

	return propagator
}
