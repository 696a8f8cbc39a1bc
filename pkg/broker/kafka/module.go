package kafka

import (
	"context"
	"fmt"

	"github.com/co2market/auth-service/pkg/broker"
	"github.com/co2market/auth-service/pkg/core/health"
	confluent "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const flushTimeoutMs = 5000

// NewKafkaModule provides a broker.Publisher backed by a confluent producer
// configured from the "kafka" section.
func NewKafkaModule() fx.Option {
	return fx.Module("kafka",
		fx.Provide(
			newConfig,
			providePublisher,
			func(p *Publisher) broker.Publisher { return p },
		),
	)
}

func providePublisher(lc fx.Lifecycle, log *zap.Logger, conf Config, readiness health.ComponentManager) (*Publisher, error) {
	log = log.Named("kafka-producer")
	p, err := confluent.NewProducer(&confluent.ConfigMap{
		"bootstrap.servers":  conf.Brokers,
		"client.id":          conf.ClientID,
		"acks":               conf.Acks,
		"enable.idempotence": conf.Acks == "all",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	markReady := readiness.AddComponent("kafka-producer")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := waitForBrokers(ctx, p, log, conf.ReadinessTimeoutSeconds, *conf.FailOnBrokerError); err != nil {
				return err
			}
			markReady()
			return nil
		},
		OnStop: func(context.Context) error {
			if left := p.Flush(flushTimeoutMs); left > 0 {
				log.Warn("kafka producer closed with undelivered messages", zap.Int("count", left))
			}
			p.Close()
			return nil
		},
	})
	return newPublisher(p), nil
}
