package outbox

import (
	"github.com/co2market/auth-service/pkg/broker"
	"github.com/co2market/auth-service/pkg/core/config"
	"github.com/co2market/auth-service/pkg/core/worker"
	"github.com/co2market/auth-service/pkg/event"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewOutboxModule provides Writer and Dispatcher and runs the dispatcher as a
// worker once every component is ready. A Store (mongostore or pgstore) and a
// broker.Publisher must be provided elsewhere.
func NewOutboxModule() fx.Option {
	return fx.Module("outbox",
		fx.Provide(
			newConfig,
			func(app config.AppConfig) event.MetadataPopulator {
				return event.NewMetadataPopulator(app.ServiceName)
			},
			func(tp trace.TracerProvider) tracePropagator {
				return newTracePropagator(tp)
			},
			func(mp metric.MeterProvider) (*dispatchMetrics, error) {
				return newDispatchMetrics(mp)
			},
			newWriter,
			provideDispatcher,
			worker.Register[*Dispatcher]("outbox-dispatcher", worker.WithReady()),
		),
	)
}

func provideDispatcher(store Store, publisher broker.Publisher, cfg Config, propagator tracePropagator, metrics *dispatchMetrics, log *zap.Logger) *Dispatcher {
	return newDispatcher(store, publisher, cfg, propagator, metrics, log)
}
