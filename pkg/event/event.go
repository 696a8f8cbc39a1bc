// Package event defines the JSON envelope shared by every domain event the
// service publishes.
package event

import "time"

// SchemaVersion is the envelope version stamped on new events.
const SchemaVersion = "1.0"

// Metadata is the envelope carried by every event body. Consumers dedupe on
// EventID, which equals the outbox record's event id.
type Metadata struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
	Version       string    `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	TraceID       string    `json:"trace_id,omitempty"`
}

// Event is implemented by payloads that embed Metadata.
type Event interface {
	GetMetadata() *Metadata
}

// GetMetadata lets any struct embedding Metadata satisfy Event.
func (m *Metadata) GetMetadata() *Metadata {
	return m
}
