package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/co2market/auth-service/pkg/persistence"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (f *fakeTx) Commit(context.Context) error {
	if f.commitErr != nil {
		err := f.commitErr
		f.commitErr = nil
		return err
	}
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if f.committed {
		return pgx.ErrTxClosed
	}
	f.rolledBack = true
	return nil
}

type fakeBeginner struct {
	txs   []*fakeTx
	calls int
	err   error
}

func (f *fakeBeginner) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	if f.err != nil {
		return nil, f.err
	}
	tx := f.txs[f.calls]
	f.calls++
	return tx, nil
}

func TestTxManager_WithTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commits and exposes tx in context", func(t *testing.T) {
		tx := &fakeTx{}
		tm := &txManager{db: &fakeBeginner{txs: []*fakeTx{tx}}, log: zap.NewNop()}

		res, err := tm.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
			got, ok := TxFromContext(txCtx)
			require.True(t, ok)
			assert.Same(t, tx, got)
			return "done", nil
		})

		require.NoError(t, err)
		assert.Equal(t, "done", res)
		assert.True(t, tx.committed)
		assert.False(t, tx.rolledBack)
	})

	t.Run("rolls back when fn fails", func(t *testing.T) {
		tx := &fakeTx{}
		tm := &txManager{db: &fakeBeginner{txs: []*fakeTx{tx}}, log: zap.NewNop()}
		boom := errors.New("email taken")

		_, err := tm.WithTransaction(ctx, func(context.Context) (any, error) { return nil, boom })

		assert.ErrorIs(t, err, boom)
		assert.False(t, tx.committed)
		assert.True(t, tx.rolledBack)
	})

	t.Run("retries serialization failures", func(t *testing.T) {
		first := &fakeTx{commitErr: &pgconn.PgError{Code: codeSerializationFailure}}
		second := &fakeTx{}
		b := &fakeBeginner{txs: []*fakeTx{first, second}}
		tm := &txManager{db: b, log: zap.NewNop()}

		_, err := tm.WithTransaction(ctx, func(context.Context) (any, error) { return nil, nil })

		require.NoError(t, err)
		assert.Equal(t, 2, b.calls)
		assert.True(t, first.rolledBack)
		assert.True(t, second.committed)
	})

	t.Run("joins outer transaction", func(t *testing.T) {
		outer := &fakeTx{}
		b := &fakeBeginner{}
		tm := &txManager{db: b, log: zap.NewNop()}
		txCtx := context.WithValue(ctx, txCtxKey{}, pgx.Tx(outer))

		_, err := tm.WithTransaction(txCtx, func(inner context.Context) (any, error) {
			assert.True(t, tm.InTransaction(inner))
			return nil, nil
		})

		require.NoError(t, err)
		assert.Zero(t, b.calls)
		assert.False(t, outer.committed)
	})

	t.Run("wraps begin failure", func(t *testing.T) {
		tm := &txManager{db: &fakeBeginner{err: errors.New("pool closed")}, log: zap.NewNop()}

		_, err := tm.WithTransaction(ctx, func(context.Context) (any, error) { return nil, nil })

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to begin transaction")
	})
}

func TestTranslateError(t *testing.T) {
	assert.NoError(t, TranslateError(nil))
	assert.ErrorIs(t, TranslateError(pgx.ErrNoRows), persistence.ErrEntityNotFound)

	err := TranslateError(&pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "users_email_key"})
	assert.ErrorIs(t, err, persistence.ErrDuplicateKey)
	assert.Contains(t, err.Error(), "users_email_key")

	other := errors.New("timeout")
	assert.Same(t, other, TranslateError(other))
}
