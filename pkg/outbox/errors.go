package outbox

import "errors"

var (
	// ErrNoTransaction is returned by RecordEvent outside a transaction.
	ErrNoTransaction = errors.New("outbox: record event requires an active transaction")
	// ErrEventNotFound is returned when no record has the given event id.
	ErrEventNotFound = errors.New("outbox: event not found")
	// ErrLeaseLost is returned when a completion update does not match the
	// caller's lease, because it expired and another owner claimed the record
	// or the record was already completed.
	ErrLeaseLost = errors.New("outbox: lease lost")
	// ErrInvalidPayload is returned for payloads that are not valid JSON.
	ErrInvalidPayload = errors.New("outbox: payload is not valid JSON")
	// ErrAlreadyPublished is returned when redelivery targets a published record.
	ErrAlreadyPublished = errors.New("outbox: event already published")
)
