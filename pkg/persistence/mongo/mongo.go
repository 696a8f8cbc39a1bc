package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/v2/mongo/otelmongo"
	"go.uber.org/zap"
)

// Mongo gives repositories access to collections of the configured database.
type Mongo interface {
	Collection(name string) *mongodriver.Collection
	Database() *mongodriver.Database
	// QueryTimeout bounds a single repository call.
	QueryTimeout() time.Duration
}

type client struct {
	client   *mongodriver.Client
	database *mongodriver.Database
	conf     Config
	log      *zap.Logger
}

func newClient(log *zap.Logger, conf Config) (*client, error) {
	if err := conf.validate(); err != nil {
		return nil, err
	}

	opts := options.Client().
		ApplyURI(conf.URI()).
		SetMaxPoolSize(conf.MaxPoolSize).
		SetMinPoolSize(conf.MinPoolSize).
		SetMaxConnIdleTime(conf.MaxConnIdleTime).
		SetServerSelectionTimeout(conf.ServerSelectTimeout).
		SetMonitor(otelmongo.NewMonitor())

	// Connect does no I/O; the first round trip is the Ping in connect.
	c, err := mongodriver.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	return &client{
		client:   c,
		database: c.Database(conf.Database),
		conf:     conf,
		log:      log,
	}, nil
}

func (c *client) connect(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, c.conf.ConnectTimeout)
	defer cancel()

	if err := c.client.Ping(pingCtx, nil); err != nil {
		return fmt.Errorf("failed to ping mongo: %w", err)
	}

	c.log.Info("connected to mongo",
		zap.String("database", c.conf.Database),
		zap.Uint64("max-pool-size", c.conf.MaxPoolSize),
		zap.Duration("query-timeout", c.conf.QueryTimeout),
	)
	return nil
}

func (c *client) disconnect(ctx context.Context) error {
	stopCtx, cancel := context.WithTimeout(ctx, c.conf.ConnectTimeout)
	defer cancel()

	if err := c.client.Disconnect(stopCtx); err != nil && !errors.Is(err, mongodriver.ErrClientDisconnected) {
		return fmt.Errorf("failed to disconnect from mongo: %w", err)
	}
	c.log.Info("disconnected from mongo")
	return nil
}

func (c *client) startSession() (session, error) {
	s, err := c.client.StartSession()
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c *client) Collection(name string) *mongodriver.Collection {
	return c.database.Collection(name)
}

func (c *client) Database() *mongodriver.Database {
	return c.database
}

func (c *client) QueryTimeout() time.Duration {
	return c.conf.QueryTimeout
}
