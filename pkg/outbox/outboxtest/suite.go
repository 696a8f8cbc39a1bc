// Package outboxtest holds the behaviour every outbox.Store must share. Store
// implementations run it from their integration tests.
package outboxtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/co2market/auth-service/pkg/broker"
	"github.com/co2market/auth-service/pkg/event"
	"github.com/co2market/auth-service/pkg/outbox"
	"github.com/co2market/auth-service/pkg/persistence"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
)

// Harness wires a Store under test.
type Harness struct {
	Store     outbox.Store
	TxManager persistence.TxManager
	// Reset removes every outbox record.
	Reset func(t *testing.T)
}

const lease = 30 * time.Second

// Run executes the suite as subtests of t.
func Run(t *testing.T, h Harness) {
	tests := []struct {
		name string
		fn   func(t *testing.T, h Harness)
	}{
		{"committed transaction persists event", testCommit},
		{"rolled back transaction leaves no event", testRollback},
		{"event id is unique", testUniqueEventID},
		{"claim orders oldest first and honours limit", testClaimOrder},
		{"claim skips leased records until lease expires", testClaimLease},
		{"claim skips records not yet due", testClaimNextAttempt},
		{"completion requires the lease owner", testLeaseOwner},
		{"failure increments retry count and abandons at ceiling", testFailure},
		{"redelivery claims abandoned records", testRedelivery},
		{"records over a lowered ceiling are abandoned", testAbandonExhausted},
		{"concurrent claims never share a record", testConcurrentClaims},
		{"dispatcher publishes and abandons", testDispatcher},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.Reset(t)
			tt.fn(t, h)
		})
	}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func newEvent(createdAt time.Time) *outbox.Event {
	return &outbox.Event{
		EventID:       uuid.NewString(),
		EventType:     "USER_REGISTERED",
		RoutingKey:    "auth.user.registered",
		Payload:       []byte(`{"user_id":"u-1"}`),
		Headers:       map[string]string{"traceparent": "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01"},
		CreatedAt:     createdAt,
		Status:        outbox.StatusPending,
		NextAttemptAt: createdAt,
	}
}

func appendAll(t *testing.T, h Harness, events ...*outbox.Event) {
	t.Helper()
	_, err := h.TxManager.WithTransaction(context.Background(), func(ctx context.Context) (any, error) {
		for _, ev := range events {
			if err := h.Store.Append(ctx, ev); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	require.NoError(t, err)
}

func eventIDs(events []*outbox.Event) []string {
	return lo.Map(events, func(ev *outbox.Event, _ int) string { return ev.EventID })
}

func claimAll(t *testing.T, h Harness, owner string, at time.Time, limit int) []*outbox.Event {
	t.Helper()
	events, err := h.Store.Claim(context.Background(), outbox.ClaimRequest{
		Owner: owner, Now: at, Lease: lease, Limit: limit, MaxRetries: 5,
	})
	require.NoError(t, err)
	return events
}

func newWriter(h Harness) outbox.Writer {
	return outbox.NewWriter(h.Store, h.TxManager, event.NewMetadataPopulator("auth-service"), noop.NewTracerProvider())
}

func testCommit(t *testing.T, h Harness) {
	w := newWriter(h)

	id, err := persistence.InTx(context.Background(), h.TxManager, func(ctx context.Context) (string, error) {
		return w.RecordEvent(ctx, "USER_REGISTERED", "auth.user.registered", json.RawMessage(`{"user_id":"u-1"}`))
	})
	require.NoError(t, err)

	ev, err := h.Store.FindByEventID(context.Background(), id)
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, id, ev.EventID)
	assert.Equal(t, "USER_REGISTERED", ev.EventType)
	assert.Equal(t, "auth.user.registered", ev.RoutingKey)
	assert.JSONEq(t, `{"user_id":"u-1"}`, string(ev.Payload))
	assert.False(t, ev.Published)
	assert.Nil(t, ev.PublishedAt)
	assert.Zero(t, ev.RetryCount)
	assert.Equal(t, outbox.StatusPending, ev.Status)
}

func testRollback(t *testing.T, h Harness) {
	w := newWriter(h)
	var id string
	businessErr := errors.New("user insert failed")

	_, err := h.TxManager.WithTransaction(context.Background(), func(ctx context.Context) (any, error) {
		var recErr error
		id, recErr = w.RecordEvent(ctx, "USER_REGISTERED", "auth.user.registered", json.RawMessage(`{}`))
		require.NoError(t, recErr)
		return nil, businessErr
	})
	require.ErrorIs(t, err, businessErr)

	_, err = h.Store.FindByEventID(context.Background(), id)
	assert.ErrorIs(t, err, outbox.ErrEventNotFound)
}

func testUniqueEventID(t *testing.T, h Harness) {
	first := newEvent(now())
	appendAll(t, h, first)

	dup := newEvent(now())
	dup.EventID = first.EventID
	_, err := h.TxManager.WithTransaction(context.Background(), func(ctx context.Context) (any, error) {
		return nil, h.Store.Append(ctx, dup)
	})

	assert.ErrorIs(t, err, persistence.ErrDuplicateKey)
}

func testClaimOrder(t *testing.T, h Harness) {
	base := now().Add(-time.Minute)
	e1, e2, e3 := newEvent(base), newEvent(base.Add(time.Second)), newEvent(base.Add(2*time.Second))
	appendAll(t, h, e3, e1, e2)

	claimed := claimAll(t, h, "owner-a", now(), 2)

	assert.Equal(t, []string{e1.EventID, e2.EventID}, eventIDs(claimed))
	for _, ev := range claimed {
		assert.Equal(t, "owner-a", ev.LockOwner)
		require.NotNil(t, ev.LockedUntil)
	}
}

func testClaimLease(t *testing.T, h Harness) {
	base := now().Add(-time.Minute)
	e1, e2 := newEvent(base), newEvent(base.Add(time.Second))
	appendAll(t, h, e1, e2)
	at := now()

	first := claimAll(t, h, "owner-a", at, 1)
	second := claimAll(t, h, "owner-b", at, 10)
	third := claimAll(t, h, "owner-c", at, 10)
	afterExpiry := claimAll(t, h, "owner-d", at.Add(lease+time.Second), 10)

	assert.Equal(t, []string{e1.EventID}, eventIDs(first))
	assert.Equal(t, []string{e2.EventID}, eventIDs(second))
	assert.Empty(t, third)
	assert.Equal(t, []string{e1.EventID, e2.EventID}, eventIDs(afterExpiry))
}

func testClaimNextAttempt(t *testing.T, h Harness) {
	ev := newEvent(now())
	ev.NextAttemptAt = ev.CreatedAt.Add(time.Hour)
	appendAll(t, h, ev)

	assert.Empty(t, claimAll(t, h, "owner-a", now(), 10))
	assert.Len(t, claimAll(t, h, "owner-a", now().Add(2*time.Hour), 10), 1)
}

func testLeaseOwner(t *testing.T, h Harness) {
	ctx := context.Background()
	ev := newEvent(now().Add(-time.Minute))
	appendAll(t, h, ev)
	at := now()
	claimAll(t, h, "owner-a", at, 1)

	err := h.Store.MarkPublished(ctx, ev.EventID, "owner-b", at)
	require.ErrorIs(t, err, outbox.ErrLeaseLost)

	require.NoError(t, h.Store.MarkPublished(ctx, ev.EventID, "owner-a", at))
	got, err := h.Store.FindByEventID(ctx, ev.EventID)
	require.NoError(t, err)
	assert.True(t, got.Published)
	assert.Equal(t, outbox.StatusPublished, got.Status)
	require.NotNil(t, got.PublishedAt)
	assert.WithinDuration(t, at, *got.PublishedAt, time.Millisecond)
	assert.Empty(t, got.LockOwner)
	assert.Nil(t, got.LockedUntil)

	err = h.Store.MarkPublished(ctx, ev.EventID, "owner-a", at.Add(time.Second))
	assert.ErrorIs(t, err, outbox.ErrLeaseLost, "published record cannot be completed again")
	assert.Empty(t, claimAll(t, h, "owner-a", at.Add(time.Hour), 10))
}

func testFailure(t *testing.T, h Harness) {
	ctx := context.Background()
	ev := newEvent(now().Add(-time.Minute))
	appendAll(t, h, ev)
	at := now()

	claimAll(t, h, "owner-a", at, 1)
	require.NoError(t, h.Store.MarkFailed(ctx, ev.EventID, "owner-a", outbox.Failure{
		Reason: "first", FailedAt: at, NextAttemptAt: at,
	}))
	got, err := h.Store.FindByEventID(ctx, ev.EventID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "first", got.ErrorMessage)
	assert.Equal(t, outbox.StatusPending, got.Status)
	assert.Nil(t, got.LockedUntil)

	claimAll(t, h, "owner-a", at, 1)
	require.NoError(t, h.Store.MarkFailed(ctx, ev.EventID, "owner-a", outbox.Failure{
		Reason: "last", FailedAt: at, NextAttemptAt: at, Abandon: true,
	}))

	got, err = h.Store.FindByEventID(ctx, ev.EventID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, "last", got.ErrorMessage)
	assert.Equal(t, outbox.StatusAbandoned, got.Status)
	require.NotNil(t, got.AbandonedAt)
	assert.Empty(t, claimAll(t, h, "owner-a", at.Add(time.Hour), 10))

	abandoned, err := h.Store.ListAbandoned(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{ev.EventID}, eventIDs(abandoned))
}

func testRedelivery(t *testing.T, h Harness) {
	ctx := context.Background()
	ev := newEvent(now().Add(-time.Minute))
	ev.Status = outbox.StatusAbandoned
	ev.RetryCount = 5
	appendAll(t, h, ev)
	at := now()

	_, err := h.Store.ClaimForRedelivery(ctx, "missing", "owner-a", at, lease)
	require.ErrorIs(t, err, outbox.ErrEventNotFound)

	claimed, err := h.Store.ClaimForRedelivery(ctx, ev.EventID, "owner-a", at, lease)
	require.NoError(t, err)
	assert.Equal(t, "owner-a", claimed.LockOwner)

	_, err = h.Store.ClaimForRedelivery(ctx, ev.EventID, "owner-b", at, lease)
	require.ErrorIs(t, err, outbox.ErrLeaseLost)

	require.NoError(t, h.Store.Release(ctx, ev.EventID, "owner-a", "still down"))
	got, err := h.Store.FindByEventID(ctx, ev.EventID)
	require.NoError(t, err)
	assert.Equal(t, "still down", got.ErrorMessage)
	assert.Equal(t, 5, got.RetryCount)
	assert.Equal(t, outbox.StatusAbandoned, got.Status)
	assert.Empty(t, got.LockOwner)
}

func testAbandonExhausted(t *testing.T, h Harness) {
	ctx := context.Background()
	first, second, fresh := newEvent(now().Add(-time.Minute)), newEvent(now().Add(-time.Minute)), newEvent(now().Add(-time.Minute))
	first.RetryCount = 5
	second.RetryCount = 3
	fresh.RetryCount = 1
	appendAll(t, h, first, second)
	appendAll(t, h, fresh)
	at := now()

	n, err := h.Store.AbandonExhausted(ctx, 3, at)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := h.Store.FindByEventID(ctx, fresh.EventID)
	require.NoError(t, err)
	assert.Equal(t, outbox.StatusPending, got.Status)

	// Same abandonedAt: the later insert comes first on every store.
	abandoned, err := h.Store.ListAbandoned(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{second.EventID, first.EventID}, eventIDs(abandoned))
	require.NotNil(t, abandoned[0].AbandonedAt)
	assert.True(t, at.Equal(*abandoned[0].AbandonedAt))

	n, err = h.Store.AbandonExhausted(ctx, 3, at)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testConcurrentClaims(t *testing.T, h Harness) {
	base := now().Add(-time.Minute)
	events := make([]*outbox.Event, 0, 40)
	for i := range 40 {
		events = append(events, newEvent(base.Add(time.Duration(i)*time.Millisecond)))
	}
	appendAll(t, h, events...)
	at := now()

	var mu sync.Mutex
	seen := make(map[string]string)
	g, ctx := errgroup.WithContext(context.Background())
	for w := range 4 {
		owner := fmt.Sprintf("owner-%d", w)
		g.Go(func() error {
			claimed, err := h.Store.Claim(ctx, outbox.ClaimRequest{Owner: owner, Now: at, Lease: lease, Limit: 15, MaxRetries: 5})
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, ev := range claimed {
				if prev, ok := seen[ev.EventID]; ok {
					return fmt.Errorf("event %s claimed by %s and %s", ev.EventID, prev, owner)
				}
				seen[ev.EventID] = owner
			}
			return nil
		})
	}

	require.NoError(t, g.Wait())
	assert.Len(t, seen, 40)
}

func testDispatcher(t *testing.T, h Harness) {
	ctx := context.Background()
	ok, failing := newEvent(now().Add(-time.Minute)), newEvent(now().Add(-time.Minute))
	failing.RoutingKey = "auth.user.loggedin"
	appendAll(t, h, ok, failing)

	var mu sync.Mutex
	var published []string
	pub := broker.PublisherFunc(func(_ context.Context, msg broker.Message) error {
		if msg.RoutingKey == "auth.user.loggedin" {
			return errors.New("no route")
		}
		mu.Lock()
		published = append(published, msg.MessageID)
		mu.Unlock()
		return nil
	})
	d, err := outbox.NewDispatcher(h.Store, pub, outbox.Config{
		MaxRetries:     5,
		BatchSize:      10,
		PublishTimeout: time.Second,
		LeaseDuration:  lease,
		Backoff:        outbox.BackoffConfig{Enabled: lo.ToPtr(false)},
	}, noop.NewTracerProvider(), metricnoop.NewMeterProvider(), zaptest.NewLogger(t))
	require.NoError(t, err)

	for range 5 {
		_, err := d.DispatchOnce(ctx)
		require.NoError(t, err)
	}
	res, err := d.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Claimed)

	assert.Equal(t, []string{ok.EventID}, published)
	got, err := h.Store.FindByEventID(ctx, ok.EventID)
	require.NoError(t, err)
	assert.True(t, got.Published)
	assert.Zero(t, got.RetryCount)

	got, err = h.Store.FindByEventID(ctx, failing.EventID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.RetryCount)
	assert.Equal(t, "no route", got.ErrorMessage)
	assert.Equal(t, outbox.StatusAbandoned, got.Status)
}
