package outbox

import (
	"context"
	"maps"

	"github.com/co2market/auth-service/pkg/broker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type tracePropagator interface {
	// SaveTraceContext stores the current trace context into headers.
	SaveTraceContext(ctx context.Context, headers map[string]string) map[string]string

	// StartPublishSpan restores the stored trace context, starts a producer
	// span and returns headers carrying the new span context.
	StartPublishSpan(ctx context.Context, ev *Event, topic string) (context.Context, trace.Span, map[string]string)
}

type otelTracePropagator struct {
	tracer trace.Tracer
}

func newTracePropagator(tp trace.TracerProvider) tracePropagator {
	return &otelTracePropagator{
		tracer: tp.Tracer("outbox"),
	}
}

func (t *otelTracePropagator) SaveTraceContext(ctx context.Context, headers map[string]string) map[string]string {
	if headers == nil {
		headers = make(map[string]string)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
	return headers
}

func (t *otelTracePropagator) StartPublishSpan(ctx context.Context, ev *Event, topic string) (context.Context, trace.Span, map[string]string) {
	if len(ev.Headers) > 0 {
		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(ev.Headers))
	}

	ctx, span := t.tracer.Start(ctx, "outbox.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination", topic),
			attribute.String("messaging.routing_key", ev.RoutingKey),
			attribute.String("messaging.message.id", ev.EventID),
			attribute.Int("outbox.retry_count", ev.RetryCount),
		),
	)

	headers := maps.Clone(ev.Headers)
	if headers == nil {
		headers = make(map[string]string)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
	headers[broker.HeaderEventID] = ev.EventID
	headers[broker.HeaderEventType] = ev.EventType
	headers[broker.HeaderRoutingKey] = ev.RoutingKey

	return ctx, span, headers
}
