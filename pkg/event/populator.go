package event

import (
	"context"
	"time"

	"github.com/co2market/auth-service/pkg/observability/tracing"
	"github.com/google/uuid"
)

// MetadataPopulator fills envelope fields at write time.
type MetadataPopulator interface {
	// Populate stamps ev with eventID and the producer's identity. eventType
	// is used only when the payload does not name its own type.
	Populate(ctx context.Context, ev Event, eventID, eventType string)
}

type metadataPopulator struct {
	source string
	now    func() time.Time
}

// NewMetadataPopulator returns a populator that stamps source on every event.
func NewMetadataPopulator(source string) MetadataPopulator {
	return &metadataPopulator{source: source, now: time.Now}
}

func (p *metadataPopulator) Populate(ctx context.Context, ev Event, eventID, eventType string) {
	m := ev.GetMetadata()

	m.EventID = eventID
	if m.EventType == "" {
		m.EventType = eventType
	}
	m.Source = p.source
	if m.Timestamp.IsZero() {
		m.Timestamp = p.now().UTC()
	}
	if m.Version == "" {
		m.Version = SchemaVersion
	}
	if m.CorrelationID == "" {
		if id, ok := CorrelationIDFromContext(ctx); ok {
			m.CorrelationID = id
		} else {
			m.CorrelationID = uuid.NewString()
		}
	}
	if traceID := tracing.TraceID(ctx); traceID != "" {
		m.TraceID = traceID
	}
}
