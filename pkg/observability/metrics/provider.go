package metrics

import (
	"context"
	"errors"
	"fmt"

	appconfig "github.com/co2market/auth-service/pkg/core/config"
	otelconfig "github.com/co2market/auth-service/pkg/observability/config"
	otelinternal "github.com/co2market/auth-service/pkg/observability/internal"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var errNoEndpoint = errors.New("metrics: otel-collector-endpoint is required")

// Bucket boundaries for the dispatcher histograms. The claimed boundaries
// follow the default batch size of 100.
var (
	dispatchDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	claimedBuckets          = []float64{0, 1, 5, 10, 25, 50, 100, 250}
)

func dispatchViews() []sdkmetric.Option {
	histogram := func(name string, bounds []float64) sdkmetric.Option {
		return sdkmetric.WithView(sdkmetric.NewView(
			sdkmetric.Instrument{Name: name, Kind: sdkmetric.InstrumentKindHistogram},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: bounds}},
		))
	}
	return []sdkmetric.Option{
		histogram("outbox.dispatch.duration", dispatchDurationBuckets),
		histogram("outbox.dispatch.claimed", claimedBuckets),
	}
}

func newProvider(ctx context.Context, cfg otelconfig.Config, appCfg appconfig.AppConfig) (*sdkmetric.MeterProvider, error) {
	if cfg.OtelCollectorEndpoint == "" {
		return nil, errNoEndpoint
	}

	res, err := otelinternal.NewResource(ctx, appCfg)
	if err != nil {
		return nil, err
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OtelCollectorEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create otlp metric exporter: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Metrics.Interval))
	opts := append([]sdkmetric.Option{sdkmetric.WithReader(reader), sdkmetric.WithResource(res)}, dispatchViews()...)
	return sdkmetric.NewMeterProvider(opts...), nil
}
