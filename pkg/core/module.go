package core

import (
	"time"

	"github.com/co2market/auth-service/pkg/core/config"
	"github.com/co2market/auth-service/pkg/core/health"
	"github.com/co2market/auth-service/pkg/core/logger"
	"go.uber.org/fx"
)

type coreOptions struct {
	appConfig     *config.AppConfig
	loggerConfig  *logger.Config
	configPath    string
	disableDotEnv bool
	disableFile   bool
}

// Option configures NewCoreModule.
type Option func(*coreOptions)

// WithAppConfig supplies the service identity instead of reading APP_* variables.
func WithAppConfig(cfg config.AppConfig) Option {
	return func(o *coreOptions) {
		o.appConfig = &cfg
	}
}

// WithLoggerConfig supplies the logger config instead of the "logger" section.
func WithLoggerConfig(cfg logger.Config) Option {
	return func(o *coreOptions) {
		o.loggerConfig = &cfg
	}
}

// WithConfigFile loads path instead of CONFIG_FILE.
func WithConfigFile(path string) Option {
	return func(o *coreOptions) {
		o.configPath = path
	}
}

// WithoutEnvFile skips .env loading.
func WithoutEnvFile() Option {
	return func(o *coreOptions) {
		o.disableDotEnv = true
	}
}

// WithoutConfigFile uses environment variables only.
func WithoutConfigFile() Option {
	return func(o *coreOptions) {
		o.disableFile = true
	}
}

// NewCoreModule provides configuration, logging and the readiness registry.
//
//	core.NewCoreModule()
//
//	core.NewCoreModule(
//	    core.WithAppConfig(config.AppConfig{ServiceName: "auth-service", ServiceVersion: "test", Environment: config.EnvLocal}),
//	    core.WithoutEnvFile(),
//	    core.WithoutConfigFile(),
//	)
func NewCoreModule(opts ...Option) fx.Option {
	o := &coreOptions{}
	for _, opt := range opts {
		opt(o)
	}

	return fx.Options(
		fx.StartTimeout(2*time.Minute),
		fx.StopTimeout(time.Minute),

		dotEnvModule(o),
		viperModule(o),
		appConfigModule(o),
		loggerModule(o),
		health.NewReadinessModule(),
	)
}

func dotEnvModule(o *coreOptions) fx.Option {
	if o.disableDotEnv {
		return fx.Options()
	}
	return config.NewDotEnvModule()
}

func viperModule(o *coreOptions) fx.Option {
	switch {
	case o.disableFile:
		return config.NewViperModule(config.WithoutConfigFile())
	case o.configPath != "":
		return config.NewViperModule(config.WithConfigPath(o.configPath))
	default:
		return config.NewViperModule()
	}
}

func appConfigModule(o *coreOptions) fx.Option {
	if o.appConfig != nil {
		return config.NewAppConfigModule(config.WithAppConfig(*o.appConfig))
	}
	return config.NewAppConfigModule()
}

func loggerModule(o *coreOptions) fx.Option {
	if o.loggerConfig != nil {
		return logger.NewZapLoggingModule(logger.WithLoggerConfig(*o.loggerConfig))
	}
	return logger.NewZapLoggingModule()
}
