package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/co2market/auth-service/pkg/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

type txKey struct{}

// fakeTxManager marks ctx as transactional without a database.
type fakeTxManager struct{}

func (fakeTxManager) WithTransaction(ctx context.Context, fn func(txCtx context.Context) (any, error)) (any, error) {
	return fn(context.WithValue(ctx, txKey{}, true))
}

func (fakeTxManager) InTransaction(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

type userRegistered struct {
	event.Metadata
	UserID string `json:"user_id"`
}

func newTestWriter(store Store) *writer {
	w := newWriter(store, fakeTxManager{}, event.NewMetadataPopulator("auth-service"), newTracePropagator(noop.NewTracerProvider())).(*writer)
	w.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	w.newID = func() string { return "evt-1" }
	return w
}

func inTx(t *testing.T, fn func(ctx context.Context)) {
	t.Helper()
	_, err := fakeTxManager{}.WithTransaction(context.Background(), func(ctx context.Context) (any, error) {
		fn(ctx)
		return nil, nil
	})
	require.NoError(t, err)
}

func TestWriter_RecordEvent(t *testing.T) {
	t.Run("requires transaction", func(t *testing.T) {
		store := newFakeStore()
		w := newTestWriter(store)

		_, err := w.RecordEvent(context.Background(), "USER_REGISTERED", "auth.user.registered", json.RawMessage(`{}`))

		require.ErrorIs(t, err, ErrNoTransaction)
		assert.Empty(t, store.events)
	})

	t.Run("stores pending record", func(t *testing.T) {
		store := newFakeStore()
		w := newTestWriter(store)

		inTx(t, func(ctx context.Context) {
			id, err := w.RecordEvent(ctx, "USER_REGISTERED", "auth.user.registered", json.RawMessage(`{"a":1}`))

			require.NoError(t, err)
			assert.Equal(t, "evt-1", id)
		})

		require.Len(t, store.events, 1)
		ev := store.events[0]
		assert.Equal(t, "evt-1", ev.EventID)
		assert.Equal(t, "USER_REGISTERED", ev.EventType)
		assert.Equal(t, "auth.user.registered", ev.RoutingKey)
		assert.JSONEq(t, `{"a":1}`, string(ev.Payload))
		assert.Equal(t, StatusPending, ev.Status)
		assert.False(t, ev.Published)
		assert.Zero(t, ev.RetryCount)
		assert.Nil(t, ev.PublishedAt)
		assert.Equal(t, ev.CreatedAt, ev.NextAttemptAt)
		assert.NotNil(t, ev.Headers)
	})

	t.Run("populates event envelope", func(t *testing.T) {
		store := newFakeStore()
		w := newTestWriter(store)
		payload := &userRegistered{UserID: "u-1"}

		inTx(t, func(ctx context.Context) {
			_, err := w.RecordEvent(event.WithCorrelationID(ctx, "corr-1"), "USER_REGISTERED", "auth.user.registered", payload)
			require.NoError(t, err)
		})

		var got map[string]any
		require.NoError(t, json.Unmarshal(store.events[0].Payload, &got))
		assert.Equal(t, "evt-1", got["event_id"])
		assert.Equal(t, "USER_REGISTERED", got["event_type"])
		assert.Equal(t, "auth-service", got["source"])
		assert.Equal(t, event.SchemaVersion, got["version"])
		assert.Equal(t, "corr-1", got["correlation_id"])
		assert.Equal(t, "u-1", got["user_id"])
	})

	t.Run("payload type wins over record type", func(t *testing.T) {
		store := newFakeStore()
		w := newTestWriter(store)
		payload := &userRegistered{Metadata: event.Metadata{EventType: "USER_LOGGED_IN"}}

		inTx(t, func(ctx context.Context) {
			_, err := w.RecordEvent(ctx, "USER_LOGIN", "auth.user.loggedin", payload)
			require.NoError(t, err)
		})

		assert.Equal(t, "USER_LOGIN", store.events[0].EventType)
		assert.Contains(t, string(store.events[0].Payload), `"event_type":"USER_LOGGED_IN"`)
	})

	t.Run("rejects invalid raw payload", func(t *testing.T) {
		store := newFakeStore()
		w := newTestWriter(store)

		inTx(t, func(ctx context.Context) {
			_, err := w.RecordEvent(ctx, "USER_REGISTERED", "auth.user.registered", []byte("not json"))
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
		assert.Empty(t, store.events)
	})

	t.Run("fails on unserializable payload", func(t *testing.T) {
		w := newTestWriter(newFakeStore())

		inTx(t, func(ctx context.Context) {
			_, err := w.RecordEvent(ctx, "USER_REGISTERED", "auth.user.registered", map[string]any{"ch": make(chan int)})
			assert.ErrorContains(t, err, "failed to serialize outbox payload")
		})
	})

	t.Run("propagates store error", func(t *testing.T) {
		store := newFakeStore()
		store.appendErr = errors.New("disk full")
		w := newTestWriter(store)

		inTx(t, func(ctx context.Context) {
			_, err := w.RecordEvent(ctx, "USER_REGISTERED", "auth.user.registered", json.RawMessage(`{}`))
			assert.ErrorContains(t, err, "disk full")
		})
	})

	t.Run("requires type and routing key", func(t *testing.T) {
		w := newTestWriter(newFakeStore())

		inTx(t, func(ctx context.Context) {
			_, err := w.RecordEvent(ctx, "", "auth.user.registered", json.RawMessage(`{}`))
			assert.Error(t, err)
		})
	})
}
