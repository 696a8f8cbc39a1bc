package rabbitmq

import (
	"context"

	"github.com/co2market/auth-service/pkg/broker"
	"github.com/co2market/auth-service/pkg/core/health"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewRabbitMQModule provides a confirm-mode broker.Publisher configured from
// the "rabbitmq" section.
func NewRabbitMQModule() fx.Option {
	return fx.Module("rabbitmq",
		fx.Provide(
			newConfig,
			providePublisher,
			func(p *Publisher) broker.Publisher { return p },
		),
	)
}

func providePublisher(lc fx.Lifecycle, log *zap.Logger, cfg Config, readiness health.ComponentManager) *Publisher {
	log = log.Named("rabbitmq")
	p := newPublisher(DialURL(cfg.URL), cfg, log)

	markReady := readiness.AddComponent("rabbitmq")
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := p.Connect(); err != nil {
				return err
			}
			markReady()
			return nil
		},
		OnStop: func(context.Context) error {
			return p.Close()
		},
	})
	return p
}
