package config

import (
	"fmt"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	envAppEnv            = "APP_ENV"
	envAppServiceName    = "APP_SERVICE_NAME"
	envAppServiceVersion = "APP_SERVICE_VERSION"
)

// Environment is the deployment environment the service runs in.
type Environment string

const (
	EnvLocal      Environment = "local"
	EnvDev        Environment = "dev"
	EnvStaging    Environment = "staging"
	EnvProduction Environment = "prod"
)

// IsValid reports whether e is one of the known environments.
func (e Environment) IsValid() bool {
	switch e {
	case EnvLocal, EnvDev, EnvStaging, EnvProduction:
		return true
	}
	return false
}

func (e Environment) String() string {
	return string(e)
}

// AppConfig carries the service identity. It is read from the environment,
// never from the config file, so that it is known before viper loads.
type AppConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    Environment
}

// IsProduction reports whether the service runs in production.
func (c AppConfig) IsProduction() bool {
	return c.Environment == EnvProduction
}

type appConfigOptions struct {
	static *AppConfig
}

// AppConfigOption configures NewAppConfigModule.
type AppConfigOption func(*appConfigOptions)

// WithAppConfig supplies a fixed AppConfig instead of reading APP_* variables.
func WithAppConfig(cfg AppConfig) AppConfigOption {
	return func(o *appConfigOptions) {
		o.static = &cfg
	}
}

// NewAppConfigModule provides AppConfig.
//
// Required environment variables:
//   - APP_ENV: one of local, dev, staging, prod
//   - APP_SERVICE_NAME
//   - APP_SERVICE_VERSION
func NewAppConfigModule(opts ...AppConfigOption) fx.Option {
	o := &appConfigOptions{}
	for _, opt := range opts {
		opt(o)
	}

	provide := fx.Provide(newAppConfig)
	if o.static != nil {
		provide = fx.Supply(*o.static)
	}

	return fx.Module("appconfig",
		provide,
		fx.Invoke(func(log *zap.Logger, conf AppConfig) {
			log.Info("loaded application configuration",
				zap.String("service", conf.ServiceName),
				zap.String("version", conf.ServiceVersion),
				zap.String("environment", conf.Environment.String()),
			)
		}),
	)
}

func newAppConfig() (AppConfig, error) {
	env := Environment(os.Getenv(envAppEnv))
	if !env.IsValid() {
		return AppConfig{}, fmt.Errorf("%s must be one of local, dev, staging, prod, got %q", envAppEnv, env)
	}

	serviceName := os.Getenv(envAppServiceName)
	if serviceName == "" {
		return AppConfig{}, fmt.Errorf("%s is required", envAppServiceName)
	}

	serviceVersion := os.Getenv(envAppServiceVersion)
	if serviceVersion == "" {
		return AppConfig{}, fmt.Errorf("%s is required", envAppServiceVersion)
	}

	return AppConfig{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Environment:    env,
	}, nil
}
