package outbox

import "time"

// Status is the delivery state of an outbox record.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPublished Status = "PUBLISHED"
	StatusAbandoned Status = "ABANDONED"
)

// CanTransitionTo reports whether a record in s may move to next.
// PUBLISHED is terminal; ABANDONED leaves only through redelivery.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusPublished || next == StatusAbandoned
	case StatusAbandoned:
		return next == StatusPublished
	default:
		return false
	}
}

// Event is one durable outbox record.
type Event struct {
	// ID is the storage key. It is never sent to the broker.
	ID         string
	EventID    string
	EventType  string
	RoutingKey string
	// Payload is the JSON body, stored as written.
	Payload []byte
	// Headers carry the W3C trace context captured when the event was recorded.
	Headers map[string]string

	CreatedAt    time.Time
	PublishedAt  *time.Time
	Published    bool
	RetryCount   int
	ErrorMessage string

	Status        Status
	NextAttemptAt time.Time
	LockedUntil   *time.Time
	LockOwner     string
	AbandonedAt   *time.Time
}

// ClaimRequest selects and leases eligible records.
type ClaimRequest struct {
	Owner      string
	Now        time.Time
	Lease      time.Duration
	Limit      int
	MaxRetries int
}

// LockedUntil is the lease expiry granted by this request.
func (r ClaimRequest) LockedUntil() time.Time {
	return r.Now.Add(r.Lease)
}

// Failure describes one failed publish attempt.
type Failure struct {
	Reason        string
	FailedAt      time.Time
	NextAttemptAt time.Time
	// Abandon moves the record to ABANDONED in the same update.
	Abandon bool
}
