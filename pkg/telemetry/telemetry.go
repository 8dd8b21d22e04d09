// Package telemetry owns the process-wide tracer provider and the
// prometheus collectors served on /metrics.
package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/jukubill/internal/config"
	"github.com/smallbiznis/jukubill/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const exporterDialTimeout = 5 * time.Second

var Module = fx.Options(
	fx.Provide(NewTracerProvider),
	fx.Provide(func() *Metrics { return NewMetrics(prometheus.DefaultRegisterer) }),
)

// NewTracerProvider installs the global tracer provider and propagator.
// Spans are exported over OTLP/gRPC only when OTEL_ENABLED is set; every
// span is tagged with the request's correlation ID and tenant.
func NewTracerProvider(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*sdktrace.TracerProvider, error) {
	res := resource.NewWithAttributes("",
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.Environment),
		attribute.String("jukubill.timezone", cfg.Location().String()),
	)

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithSpanProcessor(spanTagger{}),
	}
	if cfg.OtelEnabled {
		exporter, err := newExporter(cfg.OTLPEndpoint)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	lc.Append(fx.StopHook(func(ctx context.Context) error {
		log.Info("flushing spans")
		return tp.Shutdown(ctx)
	}))

	log.Info("tracer provider ready",
		zap.Bool("export", cfg.OtelEnabled),
		zap.String("endpoint", cfg.OTLPEndpoint),
	)
	return tp, nil
}

func newExporter(endpoint string) (*otlptrace.Exporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), exporterDialTimeout)
	defer cancel()
	return otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
}

type spanTagger struct{}

func (spanTagger) OnStart(ctx context.Context, s sdktrace.ReadWriteSpan) {
	s.SetAttributes(correlation.Attributes(ctx)...)
}

func (spanTagger) OnEnd(sdktrace.ReadOnlySpan) {}

func (spanTagger) Shutdown(context.Context) error { return nil }

func (spanTagger) ForceFlush(context.Context) error { return nil }
