package outbox

import (
	"context"
	"time"
)

// Store persists outbox records. Append joins the transaction carried by ctx;
// every other method runs in its own unit of work.
type Store interface {
	Append(ctx context.Context, ev *Event) error

	// Claim atomically leases up to req.Limit PENDING records with
	// RetryCount < req.MaxRetries, NextAttemptAt <= req.Now and no live lease.
	// Records are returned oldest CreatedAt first.
	Claim(ctx context.Context, req ClaimRequest) ([]*Event, error)

	// ClaimForRedelivery leases one unpublished record regardless of its
	// retry count or status. Returns ErrEventNotFound or ErrLeaseLost.
	ClaimForRedelivery(ctx context.Context, eventID, owner string, now time.Time, lease time.Duration) (*Event, error)

	// MarkPublished completes a leased record. Returns ErrLeaseLost when owner
	// no longer holds the lease.
	MarkPublished(ctx context.Context, eventID, owner string, at time.Time) error

	// MarkFailed increments RetryCount, records the reason and releases the
	// lease. Returns ErrLeaseLost when owner no longer holds the lease.
	MarkFailed(ctx context.Context, eventID, owner string, f Failure) error

	// Release drops the lease and records reason without counting an attempt.
	Release(ctx context.Context, eventID, owner, reason string) error

	// AbandonExhausted moves unleased PENDING records with
	// RetryCount >= maxRetries to ABANDONED. Such records exist when the
	// ceiling was lowered after they failed. Returns the number moved.
	AbandonExhausted(ctx context.Context, maxRetries int, at time.Time) (int64, error)

	// ListAbandoned returns ABANDONED records, most recently abandoned first.
	ListAbandoned(ctx context.Context, limit int) ([]*Event, error)

	FindByEventID(ctx context.Context, eventID string) (*Event, error)
}
