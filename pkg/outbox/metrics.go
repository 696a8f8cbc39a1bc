package outbox

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type dispatchMetrics struct {
	published metric.Int64Counter
	failed    metric.Int64Counter
	abandoned metric.Int64Counter
	claimed   metric.Int64Histogram
	duration  metric.Float64Histogram
}

func newDispatchMetrics(mp metric.MeterProvider) (*dispatchMetrics, error) {
	meter := mp.Meter("outbox")
	m := &dispatchMetrics{}
	var err error

	if m.published, err = meter.Int64Counter("outbox.events.published",
		metric.WithDescription("Outbox events accepted by the broker")); err != nil {
		return nil, err
	}
	if m.failed, err = meter.Int64Counter("outbox.events.failed",
		metric.WithDescription("Failed outbox publish attempts")); err != nil {
		return nil, err
	}
	if m.abandoned, err = meter.Int64Counter("outbox.events.abandoned",
		metric.WithDescription("Outbox events that reached the retry ceiling")); err != nil {
		return nil, err
	}
	if m.claimed, err = meter.Int64Histogram("outbox.dispatch.claimed",
		metric.WithDescription("Records leased per dispatch pass")); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("outbox.dispatch.duration",
		metric.WithDescription("Dispatch pass duration"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return m, nil
}

func eventAttrs(ev *Event) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("event_type", ev.EventType),
		attribute.String("routing_key", ev.RoutingKey),
	)
}

func (m *dispatchMetrics) recordPass(ctx context.Context, claimed int, took time.Duration) {
	m.claimed.Record(ctx, int64(claimed))
	m.duration.Record(ctx, took.Seconds())
}
