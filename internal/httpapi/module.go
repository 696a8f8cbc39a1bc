package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/co2market/auth-service/internal/account"
	"github.com/co2market/auth-service/pkg/core/config"
	"github.com/co2market/auth-service/pkg/core/health"
	"github.com/co2market/auth-service/pkg/outbox"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewHTTPModule serves the API on http.port. Requires account.Service and
// *outbox.Dispatcher.
func NewHTTPModule() fx.Option {
	return fx.Module("http",
		fx.Provide(
			newConfig,
			func(d *outbox.Dispatcher) OutboxOperator { return d },
			provideHandler,
		),
		fx.Invoke(startServer),
	)
}

type handlerParams struct {
	fx.In
	Config    Config
	App       config.AppConfig
	Log       *zap.Logger
	Accounts  account.Service
	Operator  OutboxOperator
	Readiness health.ReadinessChecker
	TP        trace.TracerProvider
	MP        metric.MeterProvider
}

func provideHandler(p handlerParams) http.Handler {
	engine := newEngine(routerDeps{
		Config:    p.Config,
		Log:       p.Log.Named("http"),
		Accounts:  p.Accounts,
		Operator:  p.Operator,
		Readiness: p.Readiness,
	})
	return otelhttp.NewHandler(engine, p.App.ServiceName,
		otelhttp.WithTracerProvider(p.TP),
		otelhttp.WithMeterProvider(p.MP),
		otelhttp.WithFilter(func(r *http.Request) bool { return !isHealthPath(r.URL.Path) }),
	)
}

func startServer(lc fx.Lifecycle, log *zap.Logger, conf Config, handler http.Handler, readiness health.ComponentManager, shutdowner fx.Shutdowner) {
	log = log.Named("http")
	srv := newServer(log, conf, handler)
	markReady := readiness.AddComponent("http-server")

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := srv.listen()
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", srv.httpSrv.Addr, err)
			}
			markReady()
			go func() {
				if err := srv.serve(ln); err != nil {
					log.Error("http server failed, shutting down application", zap.Error(err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.shutdown(ctx)
		},
	})
}
