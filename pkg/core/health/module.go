package health

import (
	"context"

	"go.uber.org/fx"
)

// NewReadinessModule provides the readiness registry. Registration is sealed
// by the first OnStart hook of the application, which fx runs after every
// constructor has registered its components.
func NewReadinessModule() fx.Option {
	return fx.Module("readiness",
		fx.Provide(
			newReadiness,
			func(r *readiness) ComponentManager { return r },
			func(r *readiness) ReadinessChecker { return r },
			func(r *readiness) ReadinessWaiter { return r },
		),
		fx.Invoke(func(lc fx.Lifecycle, r *readiness) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					r.seal()
					return nil
				},
			})
		}),
	)
}
