package tracing

import (
	"context"

	appconfig "github.com/co2market/auth-service/pkg/core/config"
	"github.com/co2market/auth-service/pkg/core/health"
	otelconfig "github.com/co2market/auth-service/pkg/observability/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type providerParams struct {
	fx.In
	Lc        fx.Lifecycle
	Log       *zap.Logger
	Cfg       otelconfig.Config
	AppCfg    appconfig.AppConfig
	Readiness health.ComponentManager
}

// NewTracingModule provides trace.TracerProvider and installs the W3C
// propagator globally. When tracing is disabled a no-op provider is returned.
func NewTracingModule() fx.Option {
	return fx.Options(
		fx.Provide(func(p providerParams) (trace.TracerProvider, error) {
			// The propagator is needed even without export: outbox records
			// carry trace context between writer and dispatcher.
			otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
				propagation.TraceContext{},
				propagation.Baggage{},
			))
			if !p.Cfg.Tracing.Enabled {
				p.Log.Info("tracing: disabled")
				return noop.NewTracerProvider(), nil
			}
			return provideTracerProvider(p)
		}),
		fx.Invoke(func(trace.TracerProvider) {}),
	)
}

func provideTracerProvider(p providerParams) (trace.TracerProvider, error) {
	tp, err := newTracerProvider(context.Background(), p.Log, p.Cfg, p.AppCfg)
	if err != nil {
		return nil, err
	}

	markReady := p.Readiness.AddComponent(otelconfig.TracingComponentName)
	p.Lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			otel.SetTracerProvider(tp)
			p.Log.Info("tracing initialized", zap.String("endpoint", p.Cfg.OtelCollectorEndpoint))
			markReady()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, otelconfig.DefaultShutdownTimeout)
			defer cancel()
			return tp.Shutdown(shutdownCtx)
		},
	})
	return tp, nil
}
