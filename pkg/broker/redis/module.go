package redis

import (
	"context"
	"fmt"

	"github.com/co2market/auth-service/pkg/broker"
	"github.com/co2market/auth-service/pkg/core/health"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewRedisModule provides a pub/sub broker.Publisher configured from the
// "redis" section.
func NewRedisModule() fx.Option {
	return fx.Module("redis",
		fx.Provide(
			newConfig,
			providePublisher,
			func(p *Publisher) broker.Publisher { return p },
		),
	)
}

func providePublisher(lc fx.Lifecycle, log *zap.Logger, cfg Config, readiness health.ComponentManager) *Publisher {
	log = log.Named("redis")
	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	p := newPublisher(client, cfg.RequireSubscribers)

	markReady := readiness.AddComponent("redis")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("failed to ping redis: %w", err)
			}
			log.Info("connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
			markReady()
			return nil
		},
		OnStop: func(context.Context) error {
			return p.Close()
		},
	})
	return p
}
