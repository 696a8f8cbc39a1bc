package mongo

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/co2market/auth-service/pkg/core/config"
	"github.com/spf13/viper"
)

type Config struct {
	ConnectionString string `mapstructure:"connection-string"`
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	ReplicaSet       string `mapstructure:"replica-set"`
	Username         string `mapstructure:"username"`
	Password         string `mapstructure:"password"`
	Database         string `mapstructure:"database"`
	DirectConnection bool   `mapstructure:"direct-connection"`

	MaxPoolSize         uint64        `mapstructure:"max-pool-size"`
	MinPoolSize         uint64        `mapstructure:"min-pool-size"`
	MaxConnIdleTime     time.Duration `mapstructure:"max-conn-idle-time"`
	ConnectTimeout      time.Duration `mapstructure:"connect-timeout"`
	ServerSelectTimeout time.Duration `mapstructure:"server-select-timeout"`

	// QueryTimeout bounds a single store operation.
	QueryTimeout time.Duration `mapstructure:"query-timeout"`
}

func (c Config) validate() error {
	if c.Database == "" {
		return fmt.Errorf("mongo: database is required")
	}
	if c.ConnectionString != "" {
		return nil
	}
	if c.Host == "" || c.Port == 0 {
		return fmt.Errorf("mongo: host and port are required without connection-string")
	}
	return nil
}

// URI builds the connection string. ConnectionString wins when set.
func (c Config) URI() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}

	u := url.URL{
		Scheme: "mongodb",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	if c.Username != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}

	var params []string
	if c.ReplicaSet != "" {
		params = append(params, "replicaSet="+url.QueryEscape(c.ReplicaSet))
	}
	if c.DirectConnection {
		params = append(params, "directConnection=true")
	}
	u.RawQuery = strings.Join(params, "&")
	return u.String()
}

func newConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := config.Section(v, "mongo").Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to load mongo config: %w", err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 100
	}
	if cfg.MinPoolSize == 0 {
		cfg.MinPoolSize = 5
	}
	if cfg.MaxConnIdleTime == 0 {
		cfg.MaxConnIdleTime = 5 * time.Minute
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ServerSelectTimeout == 0 {
		cfg.ServerSelectTimeout = 30 * time.Second
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 10 * time.Second
	}
}
