package tracing

import (
	"context"
	"fmt"

	appconfig "github.com/co2market/auth-service/pkg/core/config"
	otelconfig "github.com/co2market/auth-service/pkg/observability/config"
	otelinternal "github.com/co2market/auth-service/pkg/observability/internal"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// samplerFor keeps the parent's decision so a dispatcher span follows the
// request that wrote the outbox record.
func samplerFor(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

func newTracerProvider(ctx context.Context, log *zap.Logger, cfg otelconfig.Config, appCfg appconfig.AppConfig) (*sdktrace.TracerProvider, error) {
	res, err := otelinternal.NewResource(ctx, appCfg)
	if err != nil {
		return nil, err
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(samplerFor(cfg.Tracing.SampleRatio)),
		sdktrace.WithResource(res),
	}

	// Without a collector spans are still created so trace ids reach logs
	// and outbox headers.
	if cfg.OtelCollectorEndpoint == "" {
		log.Info("tracing: no collector endpoint, spans are not exported")
		return sdktrace.NewTracerProvider(opts...), nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OtelCollectorEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create otlp trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(append(opts, sdktrace.WithBatcher(exporter))...), nil
}
