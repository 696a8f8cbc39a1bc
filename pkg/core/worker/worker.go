package worker

import (
	"context"
	"fmt"

	"github.com/co2market/auth-service/pkg/core/health"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// runnable is anything with a blocking Run loop that returns when ctx is done.
type runnable interface {
	Run(ctx context.Context) error
}

// Options configures a registered worker.
type Options struct {
	WaitReady       bool
	ShutdownOnError bool
}

// Option is a functional option for Register.
type Option func(*Options)

// WithReady delays Run until every readiness component is ready.
func WithReady() Option {
	return func(o *Options) {
		o.WaitReady = true
	}
}

// WithShutdown stops the application when Run returns an error.
func WithShutdown() Option {
	return func(o *Options) {
		o.ShutdownOnError = true
	}
}

type baseWorker struct {
	name       string
	log        *zap.Logger
	runFunc    func(ctx context.Context) error
	shutdowner fx.Shutdowner
	readiness  health.ReadinessWaiter
	options    Options

	cancel context.CancelFunc
	done   chan struct{}
}

// Start launches the worker goroutine.
func (w *baseWorker) Start() {
	w.log.Info("starting worker")
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		w.run(ctx)
	}()
}

func (w *baseWorker) run(ctx context.Context) {
	if w.options.WaitReady {
		w.log.Info("waiting for components readiness")
		if err := w.readiness.WaitReady(ctx); err != nil {
			w.log.Info("worker stopped before components became ready")
			return
		}
	}

	err := w.runFunc(ctx)
	if err == nil {
		w.log.Info("worker stopped")
		return
	}

	if w.options.ShutdownOnError {
		w.log.Error("worker failed, initiating shutdown", zap.Error(err))
		if shutdownErr := w.shutdowner.Shutdown(fx.ExitCode(1)); shutdownErr != nil {
			w.log.Error("failed to initiate shutdown", zap.Error(shutdownErr))
		}
		return
	}
	w.log.Error("worker stopped with error", zap.Error(err))
}

// Stop cancels the worker and waits for Run to return or ctx to expire.
func (w *baseWorker) Stop(ctx context.Context) error {
	w.log.Info("stopping worker")
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker %s did not stop in time: %w", w.name, ctx.Err())
	}
}

// Register returns an fx constructor that runs dep.Run as a background worker
// bound to the application lifecycle.
//
//	fx.Provide(worker.Register[*outbox.Dispatcher]("outbox-dispatcher", worker.WithReady()))
func Register[T runnable](name string, opts ...Option) any {
	options := Options{}
	for _, opt := range opts {
		opt(&options)
	}

	return fx.Annotate(
		func(lc fx.Lifecycle, log *zap.Logger, shutdowner fx.Shutdowner, readiness health.ReadinessWaiter, dep T) Handle {
			w := &baseWorker{
				name:       name,
				log:        log.With(zap.String("worker", name)),
				runFunc:    dep.Run,
				shutdowner: shutdowner,
				readiness:  readiness,
				options:    options,
			}
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					w.Start()
					return nil
				},
				OnStop: w.Stop,
			})
			return Handle{Name: name}
		},
		fx.ResultTags(`group:"workers"`),
	)
}

// Handle identifies a registered worker in the "workers" value group.
type Handle struct {
	Name string
}

// Invoke forces construction of every registered worker.
func Invoke() fx.Option {
	return fx.Invoke(fx.Annotate(func([]Handle) {}, fx.ParamTags(`group:"workers"`)))
}
