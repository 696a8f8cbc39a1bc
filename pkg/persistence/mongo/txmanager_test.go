package mongo

import (
	"context"
	"errors"
	"testing"

	"github.com/co2market/auth-service/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

type mockSession struct {
	mock.Mock
}

func (m *mockSession) WithTransaction(ctx context.Context, fn func(ctx context.Context) (any, error), _ ...options.Lister[options.TransactionOptions]) (any, error) {
	args := m.Called(ctx)
	if args.Error(1) != nil {
		return nil, args.Error(1)
	}
	return fn(ctx)
}

func (m *mockSession) EndSession(ctx context.Context) {
	m.Called(ctx)
}

type mockStarter struct {
	mock.Mock
}

func (m *mockStarter) startSession() (session, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(session), args.Error(1)
}

func transientErr() error {
	return mongodriver.CommandError{Code: 112, Labels: []string{"TransientTransactionError"}}
}

func TestTxManager_WithTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("marks context as transactional", func(t *testing.T) {
		sess := &mockSession{}
		sess.On("WithTransaction", mock.Anything).Return(nil, nil).Once()
		sess.On("EndSession", mock.Anything).Once()
		starter := &mockStarter{}
		starter.On("startSession").Return(sess, nil).Once()
		tm := &txManager{starter: starter, log: zap.NewNop()}

		res, err := tm.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
			assert.True(t, tm.InTransaction(txCtx))
			return "ok", nil
		})

		require.NoError(t, err)
		assert.Equal(t, "ok", res)
		assert.False(t, tm.InTransaction(ctx))
		sess.AssertExpectations(t)
		starter.AssertExpectations(t)
	})

	t.Run("joins an outer transaction", func(t *testing.T) {
		starter := &mockStarter{}
		tm := &txManager{starter: starter, log: zap.NewNop()}
		txCtx := context.WithValue(ctx, txCtxKey{}, true)

		res, err := tm.WithTransaction(txCtx, func(context.Context) (any, error) {
			return 7, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 7, res)
		starter.AssertNotCalled(t, "startSession")
	})

	t.Run("retries transient errors", func(t *testing.T) {
		failing := &mockSession{}
		failing.On("WithTransaction", mock.Anything).Return(nil, transientErr()).Once()
		failing.On("EndSession", mock.Anything).Once()
		ok := &mockSession{}
		ok.On("WithTransaction", mock.Anything).Return(nil, nil).Once()
		ok.On("EndSession", mock.Anything).Once()
		starter := &mockStarter{}
		starter.On("startSession").Return(failing, nil).Once()
		starter.On("startSession").Return(ok, nil).Once()
		tm := &txManager{starter: starter, log: zap.NewNop()}

		_, err := tm.WithTransaction(ctx, func(context.Context) (any, error) { return nil, nil })

		require.NoError(t, err)
		starter.AssertExpectations(t)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		sess := &mockSession{}
		sess.On("WithTransaction", mock.Anything).Return(nil, transientErr()).Times(maxTxAttempts)
		sess.On("EndSession", mock.Anything).Times(maxTxAttempts)
		starter := &mockStarter{}
		starter.On("startSession").Return(sess, nil).Times(maxTxAttempts)
		tm := &txManager{starter: starter, log: zap.NewNop()}

		_, err := tm.WithTransaction(ctx, func(context.Context) (any, error) { return nil, nil })

		require.Error(t, err)
		assert.Contains(t, err.Error(), "after 3 attempts")
	})

	t.Run("returns callback error without retry", func(t *testing.T) {
		boom := errors.New("username taken")
		sess := &mockSession{}
		sess.On("WithTransaction", mock.Anything).Return(nil, nil).Once()
		sess.On("EndSession", mock.Anything).Once()
		starter := &mockStarter{}
		starter.On("startSession").Return(sess, nil).Once()
		tm := &txManager{starter: starter, log: zap.NewNop()}

		_, err := tm.WithTransaction(ctx, func(context.Context) (any, error) { return nil, boom })

		assert.ErrorIs(t, err, boom)
		starter.AssertExpectations(t)
	})

	t.Run("wraps session start failure", func(t *testing.T) {
		starter := &mockStarter{}
		starter.On("startSession").Return(nil, errors.New("no servers")).Once()
		tm := &txManager{starter: starter, log: zap.NewNop()}

		_, err := tm.WithTransaction(ctx, func(context.Context) (any, error) { return nil, nil })

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to start session")
	})
}

func TestTranslateError(t *testing.T) {
	assert.NoError(t, TranslateError(nil))
	assert.ErrorIs(t, TranslateError(mongodriver.ErrNoDocuments), persistence.ErrEntityNotFound)
}
