package pgrepo

import (
	"github.com/co2market/auth-service/pkg/persistence/postgres"
	"go.uber.org/fx"
)

// NewModule provides the Postgres account.Repository and registers its
// migration. Requires postgres.NewPostgresModule.
func NewModule() fx.Option {
	return fx.Provide(
		New,
		postgres.AsMigration(Migration),
	)
}
