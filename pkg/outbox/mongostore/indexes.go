package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var indexes = []mongodriver.IndexModel{
	{
		Keys:    bson.D{{Key: "eventId", Value: 1}},
		Options: options.Index().SetName("outbox_event_id_uniq").SetUnique(true),
	},
	{
		Keys: bson.D{
			{Key: "status", Value: 1},
			{Key: "nextAttemptAt", Value: 1},
			{Key: "createdAt", Value: 1},
		},
		Options: options.Index().SetName("outbox_claim"),
	},
	{
		Keys:    bson.D{{Key: "status", Value: 1}, {Key: "abandonedAt", Value: -1}, {Key: "_id", Value: -1}},
		Options: options.Index().SetName("outbox_abandoned"),
	},
}

// EnsureIndexes creates the outbox indexes. It is idempotent.
func EnsureIndexes(ctx context.Context, db *mongodriver.Database) error {
	if _, err := db.Collection(collectionName).Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create outbox indexes: %w", err)
	}
	return nil
}
