package config

import (
	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type dotEnvOptions struct {
	path string
}

// DotEnvOption configures NewDotEnvModule.
type DotEnvOption func(*dotEnvOptions)

// WithDotEnvPath loads variables from path instead of ./.env.
func WithDotEnvPath(path string) DotEnvOption {
	return func(o *dotEnvOptions) {
		o.path = path
	}
}

// NewDotEnvModule loads a .env file into the process environment. Loading
// happens when the module is built, before any provider reads APP_* or
// config overrides. A missing file is not an error.
func NewDotEnvModule(opts ...DotEnvOption) fx.Option {
	o := &dotEnvOptions{path: ".env"}
	for _, opt := range opts {
		opt(o)
	}

	loaded := godotenv.Load(o.path) == nil

	return fx.Module("dotenv",
		fx.Invoke(func(log *zap.Logger) {
			if loaded {
				log.Info("loaded .env file", zap.String("path", o.path))
				return
			}
			log.Debug("no .env file loaded", zap.String("path", o.path))
		}),
	)
}
