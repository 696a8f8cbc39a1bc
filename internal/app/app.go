// Package app composes the service from its modules.
package app

import (
	"github.com/co2market/auth-service/internal/account"
	"github.com/co2market/auth-service/internal/httpapi"
	"github.com/co2market/auth-service/pkg/core"
	"github.com/co2market/auth-service/pkg/core/worker"
	"github.com/co2market/auth-service/pkg/observability"
	"github.com/co2market/auth-service/pkg/outbox"
	"go.uber.org/fx"
)

type Options struct {
	// ConfigFile overrides CONFIG_FILE.
	ConfigFile string
	Drivers    Drivers
}

func coreModule(o Options) fx.Option {
	if o.ConfigFile != "" {
		return core.NewCoreModule(core.WithConfigFile(o.ConfigFile))
	}
	return core.NewCoreModule()
}

func infraModules(o Options, obs ...observability.Option) (fx.Option, error) {
	storage, err := storageModule(o.Drivers.Persistence)
	if err != nil {
		return nil, err
	}
	b, err := brokerModule(o.Drivers.Broker)
	if err != nil {
		return nil, err
	}
	return fx.Options(
		coreModule(o),
		observability.NewObservabilityModule(obs...),
		storage,
		b,
		outbox.NewOutboxModule(),
	), nil
}

func serverModules(o Options) (fx.Option, error) {
	infra, err := infraModules(o)
	if err != nil {
		return nil, err
	}
	return fx.Options(
		infra,
		account.NewAccountModule(),
		httpapi.NewHTTPModule(),
		worker.Invoke(),
	), nil
}

// NewServer builds the long-running service: HTTP API plus the outbox
// dispatcher worker.
func NewServer(o Options) (*fx.App, error) {
	modules, err := serverModules(o)
	if err != nil {
		return nil, err
	}
	return fx.New(modules), nil
}

// NewOperator builds a short-lived graph for operator commands. The
// dispatcher worker is not started; targets are filled like fx.Populate.
func NewOperator(o Options, targets ...any) (*fx.App, error) {
	infra, err := infraModules(o, observability.WithoutTracing(), observability.WithoutMetrics())
	if err != nil {
		return nil, err
	}
	return fx.New(
		infra,
		fx.Populate(targets...),
	), nil
}
