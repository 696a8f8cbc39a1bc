package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/co2market/auth-service/pkg/persistence"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

const maxTxAttempts = 3

// session is the part of *mongodriver.Session the transaction manager uses.
type session interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) (any, error), opts ...options.Lister[options.TransactionOptions]) (any, error)
	EndSession(ctx context.Context)
}

type sessionStarter interface {
	startSession() (session, error)
}

type txCtxKey struct{}

type txManager struct {
	starter sessionStarter
	log     *zap.Logger
}

func newTxManager(c *client, log *zap.Logger) persistence.TxManager {
	return &txManager{starter: c, log: log}
}

func (t *txManager) InTransaction(ctx context.Context) bool {
	v, _ := ctx.Value(txCtxKey{}).(bool)
	return v
}

// WithTransaction runs fn in a multi-document transaction. It requires a
// replica set or sharded cluster.
func (t *txManager) WithTransaction(ctx context.Context, fn func(txCtx context.Context) (any, error)) (any, error) {
	if t.InTransaction(ctx) {
		return fn(ctx)
	}

	var lastErr error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		if attempt > 1 {
			t.log.Warn("retrying transaction", zap.Int("attempt", attempt), zap.Error(lastErr))
		}

		sess, err := t.starter.startSession()
		if err != nil {
			return nil, fmt.Errorf("failed to start session: %w", err)
		}

		res, err := sess.WithTransaction(ctx, func(sessCtx context.Context) (any, error) {
			return fn(context.WithValue(sessCtx, txCtxKey{}, true))
		})
		sess.EndSession(ctx)

		if err == nil {
			return res, nil
		}
		lastErr = err
		if !isTransient(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("transaction failed after %d attempts: %w", maxTxAttempts, lastErr)
}

func isTransient(err error) bool {
	var se mongodriver.ServerError
	return errors.As(err, &se) && se.HasErrorLabel("TransientTransactionError")
}

// TranslateError maps driver errors to persistence sentinels.
func TranslateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongodriver.ErrNoDocuments):
		return persistence.ErrEntityNotFound
	case mongodriver.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %w", persistence.ErrDuplicateKey, err)
	default:
		return err
	}
}
