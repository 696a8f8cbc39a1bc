//go:build integration

package pgstore

import (
	"context"
	"testing"

	"github.com/co2market/auth-service/pkg/outbox/outboxtest"
	"github.com/co2market/auth-service/pkg/persistence/postgres"
	"github.com/co2market/auth-service/pkg/testutil/container"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	pg, err := container.StartPostgres(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	db, txManager, closeDB, err := postgres.Open(ctx, zaptest.NewLogger(t), postgres.Config{DSN: pg.DSN}, Migration())
	require.NoError(t, err)
	t.Cleanup(closeDB)

	outboxtest.Run(t, outboxtest.Harness{
		Store:     New(db),
		TxManager: txManager,
		Reset: func(t *testing.T) {
			_, err := db.Pool().Exec(context.Background(), "TRUNCATE outbox_events")
			require.NoError(t, err)
		},
	})
}

func TestMigrationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	pg, err := container.StartPostgres(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	for range 2 {
		_, _, closeDB, err := postgres.Open(ctx, zaptest.NewLogger(t), postgres.Config{DSN: pg.DSN}, Migration())
		require.NoError(t, err)
		closeDB()
	}
}
