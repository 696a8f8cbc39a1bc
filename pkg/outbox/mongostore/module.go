package mongostore

import (
	"context"

	"github.com/co2market/auth-service/pkg/persistence/mongo"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewModule provides the Mongo outbox.Store and creates its indexes on start.
// Requires mongo.NewMongoModule.
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(New),
		fx.Invoke(func(lc fx.Lifecycle, m mongo.Mongo, log *zap.Logger) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if err := EnsureIndexes(ctx, m.Database()); err != nil {
						return err
					}
					log.Info("outbox indexes ensured", zap.String("collection", collectionName))
					return nil
				},
			})
		}),
	)
}
