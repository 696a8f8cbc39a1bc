package mongostore

import (
	"time"

	"github.com/co2market/auth-service/pkg/outbox"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type document struct {
	ID            bson.ObjectID     `bson:"_id,omitempty"`
	EventID       string            `bson:"eventId"`
	EventType     string            `bson:"eventType"`
	RoutingKey    string            `bson:"routingKey"`
	Payload       string            `bson:"payload"`
	Headers       map[string]string `bson:"headers,omitempty"`
	CreatedAt     time.Time         `bson:"createdAt"`
	PublishedAt   *time.Time        `bson:"publishedAt,omitempty"`
	Published     bool              `bson:"published"`
	RetryCount    int               `bson:"retryCount"`
	ErrorMessage  string            `bson:"errorMessage,omitempty"`
	Status        string            `bson:"status"`
	NextAttemptAt time.Time         `bson:"nextAttemptAt"`
	LockedUntil   *time.Time        `bson:"lockedUntil,omitempty"`
	LockOwner     string            `bson:"lockOwner,omitempty"`
	AbandonedAt   *time.Time        `bson:"abandonedAt,omitempty"`
}

func fromEvent(ev *outbox.Event) document {
	return document{
		EventID:       ev.EventID,
		EventType:     ev.EventType,
		RoutingKey:    ev.RoutingKey,
		Payload:       string(ev.Payload),
		Headers:       ev.Headers,
		CreatedAt:     ev.CreatedAt,
		PublishedAt:   ev.PublishedAt,
		Published:     ev.Published,
		RetryCount:    ev.RetryCount,
		ErrorMessage:  ev.ErrorMessage,
		Status:        string(ev.Status),
		NextAttemptAt: ev.NextAttemptAt,
		LockedUntil:   ev.LockedUntil,
		LockOwner:     ev.LockOwner,
		AbandonedAt:   ev.AbandonedAt,
	}
}

func (d document) toEvent() *outbox.Event {
	return &outbox.Event{
		ID:            d.ID.Hex(),
		EventID:       d.EventID,
		EventType:     d.EventType,
		RoutingKey:    d.RoutingKey,
		Payload:       []byte(d.Payload),
		Headers:       d.Headers,
		CreatedAt:     d.CreatedAt,
		PublishedAt:   d.PublishedAt,
		Published:     d.Published,
		RetryCount:    d.RetryCount,
		ErrorMessage:  d.ErrorMessage,
		Status:        outbox.Status(d.Status),
		NextAttemptAt: d.NextAttemptAt,
		LockedUntil:   d.LockedUntil,
		LockOwner:     d.LockOwner,
		AbandonedAt:   d.AbandonedAt,
	}
}
