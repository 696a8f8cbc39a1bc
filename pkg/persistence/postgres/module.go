package postgres

import (
	"context"

	"github.com/co2market/auth-service/pkg/core/health"
	"github.com/co2market/auth-service/pkg/persistence"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type moduleOptions struct {
	static *Config
}

// Option configures NewPostgresModule.
type Option func(*moduleOptions)

// WithPostgresConfig uses cfg instead of the "postgres" section.
func WithPostgresConfig(cfg Config) Option {
	return func(o *moduleOptions) {
		o.static = &cfg
	}
}

// NewPostgresModule provides DB, Migrator and a pgx-backed persistence.TxManager.
// Components that own tables contribute a Migration to the "postgres_migrations"
// group; they are applied in OnStart after the pool connects.
func NewPostgresModule(opts ...Option) fx.Option {
	o := &moduleOptions{}
	for _, opt := range opts {
		opt(o)
	}

	provideConfig := fx.Provide(newConfig)
	if o.static != nil {
		cfg := *o.static
		applyDefaults(&cfg)
		provideConfig = fx.Supply(cfg)
	}

	return fx.Module("postgres",
		provideConfig,
		fx.Provide(
			provideDatabase,
			func(d *database) DB { return d },
			newTxManager,
			newMigrator,
		),
	)
}

type databaseParams struct {
	fx.In
	Lc         fx.Lifecycle
	Log        *zap.Logger
	Conf       Config
	Readiness  health.ComponentManager
	Migrations []Migration `group:"postgres_migrations"`
}

func provideDatabase(p databaseParams) (*database, error) {
	log := p.Log.Named("postgres")
	d, err := newDatabase(log, p.Conf)
	if err != nil {
		return nil, err
	}
	m := newMigrator(d, log)

	markReady := p.Readiness.AddComponent("postgres")
	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := d.connect(ctx); err != nil {
				return err
			}
			if p.Conf.Migrate {
				for _, mig := range p.Migrations {
					if err := m.Up(mig); err != nil {
						return err
					}
				}
			}
			markReady()
			return nil
		},
		OnStop: func(context.Context) error {
			d.close()
			return nil
		},
	})
	return d, nil
}

// AsMigration annotates a Migration constructor for the migrations group.
func AsMigration(f any) any {
	return fx.Annotate(f, fx.ResultTags(`group:"postgres_migrations"`))
}

// Open connects and applies migrations outside an fx application, for CLI
// commands and integration tests. The returned func closes the pool.
func Open(ctx context.Context, log *zap.Logger, conf Config, migrations ...Migration) (DB, persistence.TxManager, func(), error) {
	applyDefaults(&conf)
	d, err := newDatabase(log, conf)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := d.connect(ctx); err != nil {
		d.close()
		return nil, nil, nil, err
	}
	m := newMigrator(d, log)
	for _, mig := range migrations {
		if err := m.Up(mig); err != nil {
			d.close()
			return nil, nil, nil, err
		}
	}
	return d, newTxManager(d, log), d.close, nil
}
