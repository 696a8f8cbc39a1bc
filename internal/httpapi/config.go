package httpapi

import (
	"fmt"
	"time"

	"github.com/co2market/auth-service/pkg/core/config"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	Port       int              `mapstructure:"port"`
	Connection ConnectionConfig `mapstructure:"connection"`
	RateLimit  RateLimitConfig  `mapstructure:"rate-limit"`
	// AdminKey guards the outbox operator endpoints. They are not routed
	// when it is empty.
	AdminKey string `mapstructure:"admin-key"`
	// Docs serves /openapi.yaml and a Swagger UI page at /swagger.
	Docs bool `mapstructure:"docs"`
}

// ConnectionConfig holds the http.Server timeouts. They close the connection
// without a response.
type ConnectionConfig struct {
	ReadHeaderTimeout time.Duration `mapstructure:"read-header-timeout"`
	ReadTimeout       time.Duration `mapstructure:"read-timeout"`
	WriteTimeout      time.Duration `mapstructure:"write-timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle-timeout"`
	MaxHeaderBytes    int           `mapstructure:"max-header-bytes"`
}

type RateLimitConfig struct {
	Enabled           *bool `mapstructure:"enabled"`
	RequestsPerSecond int   `mapstructure:"requests-per-second"`
	Burst             int   `mapstructure:"burst"`
}

func newConfig(v *viper.Viper, log *zap.Logger) (Config, error) {
	var cfg Config
	if err := config.Section(v, "http").Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to load http config: %w", err)
	}
	applyDefaults(&cfg)

	log.Info("loaded http config",
		zap.Int("port", cfg.Port),
		zap.Bool("rate_limit", *cfg.RateLimit.Enabled),
		zap.Bool("admin_endpoints", cfg.AdminKey != ""),
	)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	c := &cfg.Connection
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 40 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120 * time.Second
	}
	if c.MaxHeaderBytes == 0 {
		c.MaxHeaderBytes = 1 << 20
	}

	r := &cfg.RateLimit
	if r.Enabled == nil {
		enabled := true
		r.Enabled = &enabled
	}
	if r.RequestsPerSecond == 0 {
		r.RequestsPerSecond = 100
	}
	if r.Burst == 0 {
		r.Burst = 20
	}
}
