package postgres

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// Migration is an embedded migration set owned by one component. Each set
// tracks its version in its own table so components migrate independently.
type Migration struct {
	Name  string
	FS    fs.FS
	Dir   string
	Table string
}

// Migrator applies embedded migrations.
type Migrator interface {
	Up(m Migration) error
}

type migrator struct {
	db  *database
	log *zap.Logger
}

func newMigrator(d *database, log *zap.Logger) Migrator {
	return &migrator{db: d, log: log}
}

func (m *migrator) Up(mig Migration) error {
	log := m.log.With(zap.String("migration", mig.Name), zap.String("table", mig.Table))

	src, err := iofs.New(mig.FS, mig.Dir)
	if err != nil {
		return fmt.Errorf("failed to create iofs source for %s: %w", mig.Name, err)
	}

	sqlDB := stdlib.OpenDBFromPool(m.db.pool)
	defer func() { _ = sqlDB.Close() }()

	driver, err := migratepgx.WithInstance(sqlDB, &migratepgx.Config{MigrationsTable: mig.Table})
	if err != nil {
		return fmt.Errorf("failed to create migrate driver for %s: %w", mig.Name, err)
	}

	mi, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance for %s: %w", mig.Name, err)
	}

	if err := mi.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("schema is up to date")
			return nil
		}
		return fmt.Errorf("migration %s failed: %w", mig.Name, err)
	}

	version, dirty, err := mi.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		log.Warn("failed to read migration version", zap.Error(err))
	}
	log.Info("migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
