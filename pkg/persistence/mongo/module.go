package mongo

import (
	"context"

	"github.com/co2market/auth-service/pkg/core/health"
	"github.com/co2market/auth-service/pkg/persistence"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type moduleOptions struct {
	static *Config
}

// Option configures NewMongoModule.
type Option func(*moduleOptions)

// WithMongoConfig uses cfg instead of the "mongo" section.
func WithMongoConfig(cfg Config) Option {
	return func(o *moduleOptions) {
		o.static = &cfg
	}
}

// NewMongoModule provides Mongo and a session-backed persistence.TxManager.
func NewMongoModule(opts ...Option) fx.Option {
	o := &moduleOptions{}
	for _, opt := range opts {
		opt(o)
	}

	provideConfig := fx.Provide(newConfig)
	if o.static != nil {
		cfg := *o.static
		applyDefaults(&cfg)
		provideConfig = fx.Supply(cfg)
	}

	return fx.Module("mongo",
		provideConfig,
		fx.Provide(
			provideClient,
			func(c *client) Mongo { return c },
			newTxManager,
		),
	)
}

func provideClient(lc fx.Lifecycle, log *zap.Logger, conf Config, readiness health.ComponentManager) (*client, error) {
	c, err := newClient(log.Named("mongo"), conf)
	if err != nil {
		return nil, err
	}

	markReady := readiness.AddComponent("mongo")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := c.connect(ctx); err != nil {
				return err
			}
			markReady()
			return nil
		},
		OnStop: c.disconnect,
	})
	return c, nil
}

// Open connects outside an fx application, for CLI commands and integration
// tests. The returned func disconnects.
func Open(ctx context.Context, log *zap.Logger, conf Config) (Mongo, persistence.TxManager, func(context.Context) error, error) {
	applyDefaults(&conf)
	c, err := newClient(log, conf)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := c.connect(ctx); err != nil {
		return nil, nil, nil, err
	}
	return c, newTxManager(c, log), c.disconnect, nil
}
