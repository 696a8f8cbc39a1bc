package logger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

type moduleOptions struct {
	static *Config
}

// Option configures NewZapLoggingModule.
type Option func(*moduleOptions)

// WithLoggerConfig uses cfg instead of the viper "logger" section.
func WithLoggerConfig(cfg Config) Option {
	return func(o *moduleOptions) {
		o.static = &cfg
	}
}

// NewZapLoggingModule provides *zap.Logger and routes fx's own events through it.
func NewZapLoggingModule(opts ...Option) fx.Option {
	o := &moduleOptions{}
	for _, opt := range opts {
		opt(o)
	}

	provideConfig := fx.Provide(newConfig)
	if o.static != nil {
		provideConfig = fx.Supply(*o.static)
	}

	return fx.Module("logger",
		provideConfig,
		fx.Provide(provideLogger),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
}

func provideLogger(lc fx.Lifecycle, conf Config) (*zap.Logger, error) {
	log, err := newLogger(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			if err := log.Sync(); err != nil && !isUnsyncable(err) {
				return err
			}
			return nil
		},
	})
	return log, nil
}

// stderr/stdout on a terminal or pipe reject fsync.
func isUnsyncable(err error) bool {
	var pathErr *os.PathError
	if !errors.As(err, &pathErr) {
		return false
	}
	return errors.Is(pathErr.Err, syscall.EINVAL) || errors.Is(pathErr.Err, syscall.ENOTTY)
}
