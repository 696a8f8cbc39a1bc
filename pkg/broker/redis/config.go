package redis

import (
	"fmt"
	"time"

	"github.com/co2market/auth-service/pkg/core/config"
	"github.com/spf13/viper"
)

// Config for the pub/sub publisher.
type Config struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// RequireSubscribers fails a publish nobody received, so the record is retried.
	RequireSubscribers bool          `mapstructure:"require-subscribers"`
	DialTimeout        time.Duration `mapstructure:"dial-timeout"`
}

func newConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := config.Section(v, "redis").Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to load redis config: %w", err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
}
