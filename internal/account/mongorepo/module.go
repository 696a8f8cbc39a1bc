package mongorepo

import (
	"context"

	"github.com/co2market/auth-service/pkg/persistence/mongo"
	"go.uber.org/fx"
)

// NewModule provides the Mongo account.Repository and creates its indexes on
// start. Requires mongo.NewMongoModule.
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(New),
		fx.Invoke(func(lc fx.Lifecycle, m mongo.Mongo) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return EnsureIndexes(ctx, m.Database())
				},
			})
		}),
	)
}
