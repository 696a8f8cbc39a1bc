package persistence

import "context"

// TxManager runs a function inside a storage transaction. The context passed
// to fn carries the transaction; repositories that receive it join the same
// unit of work. Calling WithTransaction with a context that is already in a
// transaction reuses it.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(txCtx context.Context) (any, error)) (any, error)
	// InTransaction reports whether ctx carries an active transaction.
	InTransaction(ctx context.Context) bool
}

// InTx is a typed wrapper around TxManager.WithTransaction.
func InTx[T any](ctx context.Context, tm TxManager, fn func(txCtx context.Context) (T, error)) (T, error) {
	res, err := tm.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		return fn(txCtx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}
