package account

import "go.uber.org/fx"

// NewAccountModule provides Service. A Repository comes from mongorepo or
// pgrepo, the Writer from outbox.NewOutboxModule.
func NewAccountModule() fx.Option {
	return fx.Module("account",
		fx.Provide(NewService),
	)
}
