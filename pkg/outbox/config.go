package outbox

import (
	"errors"
	"fmt"
	"time"

	"github.com/co2market/auth-service/pkg/core/config"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	defaultInterval       = 5 * time.Second
	defaultMaxRetries     = 5
	defaultBatchSize      = 100
	defaultPublishTimeout = 10 * time.Second
	defaultLeaseDuration  = 30 * time.Second
	defaultTopic          = "co2.events"

	defaultBackoffInitial    = 5 * time.Second
	defaultBackoffMax        = 10 * time.Minute
	defaultBackoffMultiplier = 2.0
	defaultBackoffJitter     = 0.2
)

// Config controls the dispatcher.
type Config struct {
	Interval       time.Duration `mapstructure:"interval"`
	MaxRetries     int           `mapstructure:"max-retries"`
	BatchSize      int           `mapstructure:"batch-size"`
	PublishTimeout time.Duration `mapstructure:"publish-timeout"`
	LeaseDuration  time.Duration `mapstructure:"lease-duration"`
	Topic          string        `mapstructure:"topic"`
	// PublishRate caps publish attempts per second; 0 disables the limit.
	PublishRate float64       `mapstructure:"publish-rate"`
	Backoff     BackoffConfig `mapstructure:"backoff"`
}

// BackoffConfig shapes the delay before a failed record is retried.
type BackoffConfig struct {
	Enabled    *bool         `mapstructure:"enabled"`
	Initial    time.Duration `mapstructure:"initial"`
	Max        time.Duration `mapstructure:"max"`
	Multiplier float64       `mapstructure:"multiplier"`
	Jitter     float64       `mapstructure:"jitter"`
}

// IsEnabled defaults to true when unset.
func (b BackoffConfig) IsEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}

func newConfig(v *viper.Viper, log *zap.Logger) (Config, error) {
	var cfg Config
	if err := config.Section(v, "outbox").Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to load outbox config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	log.Info("loaded outbox config",
		zap.Duration("interval", cfg.Interval),
		zap.Int("max-retries", cfg.MaxRetries),
		zap.Int("batch-size", cfg.BatchSize),
		zap.String("topic", cfg.Topic),
		zap.Bool("backoff", cfg.Backoff.IsEnabled()),
	)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = defaultLeaseDuration
	}
	if cfg.Topic == "" {
		cfg.Topic = defaultTopic
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff.Initial = defaultBackoffInitial
	}
	if cfg.Backoff.Max <= 0 {
		cfg.Backoff.Max = defaultBackoffMax
	}
	if cfg.Backoff.Multiplier <= 0 {
		cfg.Backoff.Multiplier = defaultBackoffMultiplier
	}
	if cfg.Backoff.Jitter == 0 {
		cfg.Backoff.Jitter = defaultBackoffJitter
	}
}

// attemptBudget is the longest one attempt can hold a lease: the publish and
// the store update that completes it.
func (c Config) attemptBudget() time.Duration {
	return c.PublishTimeout + storeCallTimeout
}

// Validate rejects combinations the dispatcher cannot honour.
func (c Config) Validate() error {
	var errs []error
	if c.LeaseDuration <= c.attemptBudget() {
		errs = append(errs, fmt.Errorf("lease-duration (%s) must exceed publish-timeout plus %s for the completion update (%s)",
			c.LeaseDuration, storeCallTimeout, c.attemptBudget()))
	}
	if c.PublishRate < 0 {
		errs = append(errs, errors.New("publish-rate must not be negative"))
	}
	if c.Backoff.Jitter < 0 || c.Backoff.Jitter >= 1 {
		errs = append(errs, errors.New("backoff.jitter must be in [0, 1)"))
	}
	if c.Backoff.Max < c.Backoff.Initial {
		errs = append(errs, errors.New("backoff.max must not be below backoff.initial"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid outbox config: %w", errors.Join(errs...))
	}
	return nil
}
