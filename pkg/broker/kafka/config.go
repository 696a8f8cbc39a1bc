package kafka

import (
	"errors"
	"fmt"

	"github.com/co2market/auth-service/pkg/core/config"
	"github.com/spf13/viper"
)

// Config for the Kafka producer.
type Config struct {
	Brokers  string `mapstructure:"brokers"` // Comma-separated broker addresses
	ClientID string `mapstructure:"client-id"`
	Acks     string `mapstructure:"acks"`
	// ReadinessTimeoutSeconds bounds the wait for brokers on start.
	ReadinessTimeoutSeconds int   `mapstructure:"readiness-timeout-seconds"`
	FailOnBrokerError       *bool `mapstructure:"fail-on-broker-error"`
}

func newConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := config.Section(v, "kafka").Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to load kafka config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ClientID == "" {
		cfg.ClientID = "auth-service"
	}
	if cfg.Acks == "" {
		cfg.Acks = "all"
	}
	if cfg.ReadinessTimeoutSeconds == 0 {
		cfg.ReadinessTimeoutSeconds = 30
	}
	if cfg.FailOnBrokerError == nil {
		failOnError := true
		cfg.FailOnBrokerError = &failOnError
	}
}

func (c Config) validate() error {
	if c.Brokers == "" {
		return errors.New("kafka: brokers is required")
	}
	if c.ReadinessTimeoutSeconds < 0 || c.ReadinessTimeoutSeconds > 600 {
		return errors.New("kafka: readiness-timeout-seconds must be in [0, 600]")
	}
	return nil
}
