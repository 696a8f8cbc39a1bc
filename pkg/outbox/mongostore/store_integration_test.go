//go:build integration

package mongostore

import (
	"context"
	"testing"

	"github.com/co2market/auth-service/pkg/outbox/outboxtest"
	"github.com/co2market/auth-service/pkg/persistence/mongo"
	"github.com/co2market/auth-service/pkg/testutil/container"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap/zaptest"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	mdb, err := container.StartMongoDB(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mdb.Terminate(context.Background()) })

	m, txManager, disconnect, err := mongo.Open(ctx, zaptest.NewLogger(t), mongo.Config{
		ConnectionString: mdb.ConnectionString,
		Database:         "outbox_test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = disconnect(context.Background()) })
	require.NoError(t, EnsureIndexes(ctx, m.Database()))

	outboxtest.Run(t, outboxtest.Harness{
		Store:     New(m),
		TxManager: txManager,
		Reset: func(t *testing.T) {
			_, err := m.Collection(collectionName).DeleteMany(context.Background(), bson.M{})
			require.NoError(t, err)
		},
	})
}

func TestEnsureIndexesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mdb, err := container.StartMongoDB(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mdb.Terminate(context.Background()) })

	db := mdb.Client.Database("outbox_idx")

	require.NoError(t, EnsureIndexes(ctx, db))
	require.NoError(t, EnsureIndexes(ctx, db))

	specs, err := db.Collection(collectionName).Indexes().ListSpecifications(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	require.Subset(t, names, []string{"outbox_event_id_uniq", "outbox_claim", "outbox_abandoned"})
}
