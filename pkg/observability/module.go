// Package observability wires OpenTelemetry tracing and metrics.
//
//	observability.NewObservabilityModule()
//
//	// tests
//	observability.NewObservabilityModule(observability.WithoutTracing(), observability.WithoutMetrics())
package observability

import (
	"github.com/co2market/auth-service/pkg/observability/config"
	"github.com/co2market/auth-service/pkg/observability/metrics"
	"github.com/co2market/auth-service/pkg/observability/tracing"
	"go.uber.org/fx"
)

type observabilityOptions struct {
	config         *config.Config
	disableTracing bool
	disableMetrics bool
}

// Option configures NewObservabilityModule.
type Option func(*observabilityOptions)

// WithConfig uses cfg instead of the "observability" section.
func WithConfig(cfg config.Config) Option {
	return func(o *observabilityOptions) {
		o.config = &cfg
	}
}

// WithoutTracing forces tracing off.
func WithoutTracing() Option {
	return func(o *observabilityOptions) {
		o.disableTracing = true
	}
}

// WithoutMetrics forces metrics off.
func WithoutMetrics() Option {
	return func(o *observabilityOptions) {
		o.disableMetrics = true
	}
}

// NewObservabilityModule provides config, tracer provider and meter provider.
func NewObservabilityModule(opts ...Option) fx.Option {
	o := &observabilityOptions{}
	for _, opt := range opts {
		opt(o)
	}

	var cfgOpts []config.Option
	if o.config != nil {
		cfgOpts = append(cfgOpts, config.WithConfig(*o.config))
	}
	if o.disableTracing {
		cfgOpts = append(cfgOpts, config.WithDisableTracing())
	}
	if o.disableMetrics {
		cfgOpts = append(cfgOpts, config.WithDisableMetrics())
	}

	return fx.Options(
		config.NewObservabilityConfigModule(cfgOpts...),
		tracing.NewTracingModule(),
		metrics.NewMetricsModule(),
	)
}
