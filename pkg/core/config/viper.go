package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const envConfigFile = "CONFIG_FILE"

type viperOptions struct {
	configPath   *string
	noConfigFile bool
}

// ViperOption configures NewViperModule.
type ViperOption func(*viperOptions)

// WithConfigPath loads the given file instead of resolving CONFIG_FILE.
func WithConfigPath(path string) ViperOption {
	return func(o *viperOptions) {
		o.configPath = &path
	}
}

// WithoutConfigFile skips file loading; only environment variables apply.
func WithoutConfigFile() ViperOption {
	return func(o *viperOptions) {
		o.noConfigFile = true
	}
}

// FilePath is the resolved config file path. Empty means no file.
type FilePath string

// NewViperModule provides *viper.Viper. Environment variables override file
// values, with "." and "-" in keys mapped to "_" (outbox.max-retries is
// OUTBOX_MAX_RETRIES).
func NewViperModule(opts ...ViperOption) fx.Option {
	o := &viperOptions{}
	for _, opt := range opts {
		opt(o)
	}

	return fx.Module("viper",
		fx.Supply(resolveConfigPath(o)),
		fx.Provide(newViper),
		fx.Invoke(func(log *zap.Logger, v *viper.Viper) {
			log.Info("configuration loaded",
				zap.String("configFile", v.ConfigFileUsed()),
				zap.Int("settingsCount", len(v.AllSettings())),
			)
		}),
	)
}

func resolveConfigPath(o *viperOptions) FilePath {
	switch {
	case o.noConfigFile:
		return ""
	case o.configPath != nil:
		return FilePath(*o.configPath)
	default:
		return FilePath(os.Getenv(envConfigFile))
	}
}

func newViper(configFile FilePath) (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if configFile == "" {
		return v, nil
	}

	v.SetConfigFile(string(configFile))
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file [%s]: %w", configFile, err)
	}
	return v, nil
}

// Section returns the sub-tree under key, or an empty viper when the key is
// absent, so callers can unmarshal and then apply defaults unconditionally.
func Section(v *viper.Viper, key string) *viper.Viper {
	if sub := v.Sub(key); sub != nil {
		return sub
	}
	return viper.New()
}

// Load builds the same viper NewViperModule provides, for reads that must
// happen before the application graph exists. An empty path resolves
// CONFIG_FILE.
func Load(path string) (*viper.Viper, error) {
	if path == "" {
		path = os.Getenv(envConfigFile)
	}
	return newViper(FilePath(path))
}
