package container

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// Postgres is a running PostgreSQL container.
type Postgres struct {
	Container *postgres.PostgresContainer
	DSN       string
}

// StartPostgres starts postgres:16-alpine with database co2.
func StartPostgres(ctx context.Context) (*Postgres, error) {
	c, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("co2"),
		postgres.WithUsername("auth"),
		postgres.WithPassword("auth"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = testcontainers.TerminateContainer(c)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}
	return &Postgres{Container: c, DSN: dsn}, nil
}

// Terminate removes the container.
func (p *Postgres) Terminate(context.Context) error {
	return testcontainers.TerminateContainer(p.Container)
}
