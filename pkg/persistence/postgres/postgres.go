package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB exposes the pool and the transaction-aware executor to repositories.
type DB interface {
	// Conn returns the transaction carried by ctx, or the pool.
	Conn(ctx context.Context) DBTX
	Pool() *pgxpool.Pool
}

type database struct {
	pool *pgxpool.Pool
	conf Config
	log  *zap.Logger
}

func newDatabase(log *zap.Logger, conf Config) (*database, error) {
	if err := conf.validate(); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(conf.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	poolCfg.MaxConns = conf.MaxConns
	poolCfg.MinConns = conf.MinConns
	poolCfg.MaxConnIdleTime = conf.MaxConnIdleTime
	poolCfg.ConnConfig.ConnectTimeout = conf.ConnectTimeout

	// NewWithConfig does not dial; connect pings.
	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	return &database{pool: pool, conf: conf, log: log}, nil
}

func (d *database) connect(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, d.conf.ConnectTimeout)
	defer cancel()

	if err := d.pool.Ping(pingCtx); err != nil {
		return fmt.Errorf("failed to ping postgres: %w", err)
	}
	d.log.Info("connected to postgres",
		zap.String("database", d.pool.Config().ConnConfig.Database),
		zap.Int32("max-conns", d.conf.MaxConns),
	)
	return nil
}

func (d *database) close() {
	d.pool.Close()
	d.log.Info("disconnected from postgres")
}

func (d *database) Conn(ctx context.Context) DBTX {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return d.pool
}

func (d *database) Pool() *pgxpool.Pool {
	return d.pool
}
