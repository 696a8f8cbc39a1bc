package app

import (
	"fmt"

	"github.com/co2market/auth-service/internal/account/mongorepo"
	"github.com/co2market/auth-service/internal/account/pgrepo"
	"github.com/co2market/auth-service/pkg/broker"
	"github.com/co2market/auth-service/pkg/broker/kafka"
	"github.com/co2market/auth-service/pkg/broker/rabbitmq"
	"github.com/co2market/auth-service/pkg/broker/redis"
	"github.com/co2market/auth-service/pkg/outbox/mongostore"
	"github.com/co2market/auth-service/pkg/outbox/pgstore"
	"github.com/co2market/auth-service/pkg/persistence"
	"github.com/co2market/auth-service/pkg/persistence/mongo"
	"github.com/co2market/auth-service/pkg/persistence/postgres"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// Drivers selects the storage and broker backends. The graph differs per
// driver, so they are resolved before the application is built.
type Drivers struct {
	Persistence persistence.Driver
	Broker      broker.Driver
}

// ResolveDrivers reads persistence.driver and broker.driver.
func ResolveDrivers(v *viper.Viper) (Drivers, error) {
	p, err := persistence.ParseDriver(v.GetString("persistence.driver"))
	if err != nil {
		return Drivers{}, err
	}
	b, err := broker.ParseDriver(v.GetString("broker.driver"))
	if err != nil {
		return Drivers{}, err
	}
	return Drivers{Persistence: p, Broker: b}, nil
}

// storageModule wires the database, the outbox store and the user
// repository of one driver so they share a TxManager.
func storageModule(d persistence.Driver) (fx.Option, error) {
	switch d {
	case persistence.DriverMongo:
		return fx.Options(mongo.NewMongoModule(), mongostore.NewModule(), mongorepo.NewModule()), nil
	case persistence.DriverPostgres:
		return fx.Options(postgres.NewPostgresModule(), pgstore.NewModule(), pgrepo.NewModule()), nil
	default:
		return nil, fmt.Errorf("unsupported persistence driver %q", d)
	}
}

func brokerModule(d broker.Driver) (fx.Option, error) {
	switch d {
	case broker.DriverRabbitMQ:
		return rabbitmq.NewRabbitMQModule(), nil
	case broker.DriverKafka:
		return kafka.NewKafkaModule(), nil
	case broker.DriverRedis:
		return redis.NewRedisModule(), nil
	default:
		return nil, fmt.Errorf("unsupported broker driver %q", d)
	}
}
