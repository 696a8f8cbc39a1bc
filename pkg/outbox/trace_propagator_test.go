package outbox

import (
	"context"
	"testing"

	"github.com/co2market/auth-service/pkg/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func withW3CPropagator(t *testing.T) {
	t.Helper()
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })
}

func TestOtelTracePropagator_SaveTraceContext(t *testing.T) {
	withW3CPropagator(t)

	t.Run("creates headers map when nil", func(t *testing.T) {
		propagator := newTracePropagator(sdktrace.NewTracerProvider())

		result := propagator.SaveTraceContext(context.Background(), nil)

		assert.NotNil(t, result)
		assert.Empty(t, result)
	})

	t.Run("stores traceparent of active span", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		propagator := newTracePropagator(tp)
		ctx, span := tp.Tracer("test").Start(context.Background(), "register")
		defer span.End()

		result := propagator.SaveTraceContext(ctx, map[string]string{"custom": "value"})

		assert.Equal(t, "value", result["custom"])
		assert.Contains(t, result["traceparent"], span.SpanContext().TraceID().String())
	})
}

func TestOtelTracePropagator_StartPublishSpan(t *testing.T) {
	withW3CPropagator(t)

	t.Run("continues stored trace", func(t *testing.T) {
		recorder := tracetest.NewSpanRecorder()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
		propagator := newTracePropagator(tp)

		parentCtx, parent := tp.Tracer("test").Start(context.Background(), "register")
		stored := propagator.SaveTraceContext(parentCtx, nil)
		parent.End()

		ev := &Event{EventID: "e-1", EventType: "USER_REGISTERED", RoutingKey: "auth.user.registered", Headers: stored}
		ctx, span, headers := propagator.StartPublishSpan(context.Background(), ev, "co2.events")
		span.End()

		sc := trace.SpanContextFromContext(ctx)
		assert.Equal(t, parent.SpanContext().TraceID(), sc.TraceID())
		assert.NotEqual(t, stored["traceparent"], headers["traceparent"], "header carries the producer span")
		assert.Equal(t, "e-1", headers[broker.HeaderEventID])
		assert.Equal(t, "USER_REGISTERED", headers[broker.HeaderEventType])
		assert.Equal(t, "auth.user.registered", headers[broker.HeaderRoutingKey])

		spans := recorder.Ended()
		require.Len(t, spans, 2)
		assert.Equal(t, "outbox.publish", spans[1].Name())
		assert.Equal(t, trace.SpanKindProducer, spans[1].SpanKind())
	})

	t.Run("does not mutate stored headers", func(t *testing.T) {
		propagator := newTracePropagator(sdktrace.NewTracerProvider())
		stored := map[string]string{"custom": "value"}

		_, span, headers := propagator.StartPublishSpan(context.Background(), &Event{EventID: "e-2", Headers: stored}, "t")
		span.End()

		assert.Len(t, stored, 1)
		assert.Equal(t, "value", headers["custom"])
	})
}
