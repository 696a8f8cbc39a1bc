package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/co2market/auth-service/pkg/persistence"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const (
	maxTxAttempts = 3

	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

type txCtxKey struct{}

// TxFromContext returns the transaction bound to ctx by the TxManager.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txCtxKey{}).(pgx.Tx)
	return tx, ok
}

type beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

type txManager struct {
	db  beginner
	log *zap.Logger
}

func newTxManager(d *database, log *zap.Logger) persistence.TxManager {
	return &txManager{db: d.pool, log: log}
}

func (t *txManager) InTransaction(ctx context.Context) bool {
	_, ok := TxFromContext(ctx)
	return ok
}

// WithTransaction runs fn in a read-committed transaction. Serialization
// failures and deadlocks are retried; any other error rolls back and returns.
func (t *txManager) WithTransaction(ctx context.Context, fn func(txCtx context.Context) (any, error)) (any, error) {
	if t.InTransaction(ctx) {
		return fn(ctx)
	}

	var lastErr error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		if attempt > 1 {
			t.log.Warn("retrying transaction", zap.Int("attempt", attempt), zap.Error(lastErr))
		}

		res, err := t.run(ctx, fn)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("transaction failed after %d attempts: %w", maxTxAttempts, lastErr)
}

func (t *txManager) run(ctx context.Context, fn func(txCtx context.Context) (any, error)) (res any, err error) {
	tx, err := t.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				t.log.Warn("rollback failed", zap.Error(rbErr))
			}
		}
	}()

	res, err = fn(context.WithValue(ctx, txCtxKey{}, tx))
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return res, nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}

// TranslateError maps pgx errors to persistence sentinels.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.ErrEntityNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return fmt.Errorf("%w: %s", persistence.ErrDuplicateKey, pgErr.ConstraintName)
	}
	return err
}
