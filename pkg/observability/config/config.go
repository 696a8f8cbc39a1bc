package config

import (
	"fmt"
	"time"

	coreconfig "github.com/co2market/auth-service/pkg/core/config"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	DefaultMetricsInterval      = 10 * time.Second
	DefaultSampleRatio          = 1.0
	DefaultShutdownTimeout      = 5 * time.Second
	DefaultRuntimeStatsInterval = time.Second

	TracingComponentName = "tracing"
	MetricsComponentName = "metrics"
)

// Config holds the observability settings.
type Config struct {
	OtelCollectorEndpoint string        `mapstructure:"otel-collector-endpoint"`
	Tracing               TracingConfig `mapstructure:"tracing"`
	Metrics               MetricsConfig `mapstructure:"metrics"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	SampleRatio float64 `mapstructure:"sample-ratio"`
}

type MetricsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type configOptions struct {
	static         *Config
	disableTracing bool
	disableMetrics bool
}

// Option configures NewObservabilityConfigModule.
type Option func(*configOptions)

// WithConfig uses cfg instead of the "observability" section.
func WithConfig(cfg Config) Option {
	return func(o *configOptions) {
		o.static = &cfg
	}
}

// WithDisableTracing forces tracing off.
func WithDisableTracing() Option {
	return func(o *configOptions) {
		o.disableTracing = true
	}
}

// WithDisableMetrics forces metrics off.
func WithDisableMetrics() Option {
	return func(o *configOptions) {
		o.disableMetrics = true
	}
}

// NewObservabilityConfigModule provides Config.
func NewObservabilityConfigModule(opts ...Option) fx.Option {
	o := &configOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return fx.Provide(func(v *viper.Viper, log *zap.Logger) (Config, error) {
		return loadConfig(o, v, log)
	})
}

func loadConfig(o *configOptions, v *viper.Viper, log *zap.Logger) (Config, error) {
	var cfg Config
	if o.static != nil {
		cfg = *o.static
	} else if err := coreconfig.Section(v, "observability").Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to load observability config: %w", err)
	}

	if cfg.Metrics.Interval == 0 {
		cfg.Metrics.Interval = DefaultMetricsInterval
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultSampleRatio
	}
	if o.disableTracing {
		cfg.Tracing.Enabled = false
	}
	if o.disableMetrics {
		cfg.Metrics.Enabled = false
	}

	log.Info("loaded observability config",
		zap.Bool("tracing", cfg.Tracing.Enabled),
		zap.Bool("metrics", cfg.Metrics.Enabled),
	)
	return cfg, nil
}
