package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/co2market/auth-service/pkg/core/logger"
	"github.com/co2market/auth-service/pkg/event"
	"github.com/co2market/auth-service/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Writer records events inside the caller's transaction.
type Writer interface {
	// RecordEvent appends a pending record and returns its event id. ctx must
	// carry a transaction started by the persistence.TxManager; the record
	// commits or rolls back with it. payload is either JSON bytes or a value
	// to encode; event.Event values get their envelope populated first.
	RecordEvent(ctx context.Context, eventType, routingKey string, payload any) (string, error)
}

type writer struct {
	store      Store
	txManager  persistence.TxManager
	populator  event.MetadataPopulator
	propagator tracePropagator
	now        func() time.Time
	newID      func() string
}

// NewWriter returns a Writer that appends to store.
func NewWriter(store Store, txManager persistence.TxManager, populator event.MetadataPopulator, tp trace.TracerProvider) Writer {
	return newWriter(store, txManager, populator, newTracePropagator(tp))
}

func newWriter(store Store, txManager persistence.TxManager, populator event.MetadataPopulator, propagator tracePropagator) Writer {
	return &writer{
		store:      store,
		txManager:  txManager,
		populator:  populator,
		propagator: propagator,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

func (w *writer) RecordEvent(ctx context.Context, eventType, routingKey string, payload any) (string, error) {
	if !w.txManager.InTransaction(ctx) {
		return "", ErrNoTransaction
	}
	if eventType == "" || routingKey == "" {
		return "", fmt.Errorf("outbox: event type and routing key are required")
	}

	eventID := w.newID()
	body, err := w.encode(ctx, payload, eventID, eventType)
	if err != nil {
		return "", err
	}

	now := w.now().UTC()
	ev := &Event{
		EventID:       eventID,
		EventType:     eventType,
		RoutingKey:    routingKey,
		Payload:       body,
		Headers:       w.propagator.SaveTraceContext(ctx, nil),
		CreatedAt:     now,
		Status:        StatusPending,
		NextAttemptAt: now,
	}
	if err := w.store.Append(ctx, ev); err != nil {
		return "", fmt.Errorf("failed to append outbox event: %w", err)
	}

	logger.Get(ctx).Debug("outbox event recorded",
		zap.String("event_id", eventID),
		zap.String("event_type", eventType),
		zap.String("routing_key", routingKey),
	)
	return eventID, nil
}

func (w *writer) encode(ctx context.Context, payload any, eventID, eventType string) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, fmt.Errorf("%w: payload is nil", ErrInvalidPayload)
	case json.RawMessage:
		return validJSON(p)
	case []byte:
		return validJSON(p)
	case event.Event:
		w.populator.Populate(ctx, p, eventID, eventType)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize outbox payload: %w", err)
	}
	return body, nil
}

func validJSON(b []byte) ([]byte, error) {
	if !json.Valid(b) {
		return nil, ErrInvalidPayload
	}
	return append([]byte(nil), b...), nil
}
