package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type mockReadinessWaiter struct {
	ready chan struct{}
}

func newMockReadinessWaiter() *mockReadinessWaiter {
	return &mockReadinessWaiter{ready: make(chan struct{})}
}

func (m *mockReadinessWaiter) WaitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type mockShutdowner struct {
	called atomic.Bool
}

func (m *mockShutdowner) Shutdown(...fx.ShutdownOption) error {
	m.called.Store(true)
	return nil
}

func newTestWorker(run func(ctx context.Context) error, opts Options) (*baseWorker, *mockReadinessWaiter, *mockShutdowner) {
	r := newMockReadinessWaiter()
	s := &mockShutdowner{}
	return &baseWorker{
		name:       "test-worker",
		log:        zap.NewNop(),
		runFunc:    run,
		shutdowner: s,
		readiness:  r,
		options:    opts,
	}, r, s
}

func TestOptions(t *testing.T) {
	opts := Options{}
	WithReady()(&opts)
	WithShutdown()(&opts)

	assert.True(t, opts.WaitReady)
	assert.True(t, opts.ShutdownOnError)
}

func TestBaseWorker(t *testing.T) {
	t.Run("runs and cancels on stop", func(t *testing.T) {
		started := make(chan struct{})
		w, _, _ := newTestWorker(func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return nil
		}, Options{})

		w.Start()
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("run function was not executed")
		}

		require.NoError(t, w.Stop(context.Background()))
	})

	t.Run("waits for readiness before running", func(t *testing.T) {
		var ran atomic.Bool
		w, readiness, _ := newTestWorker(func(ctx context.Context) error {
			ran.Store(true)
			<-ctx.Done()
			return nil
		}, Options{WaitReady: true})

		w.Start()
		time.Sleep(20 * time.Millisecond)
		assert.False(t, ran.Load())

		close(readiness.ready)
		assert.Eventually(t, ran.Load, time.Second, 5*time.Millisecond)
		require.NoError(t, w.Stop(context.Background()))
	})

	t.Run("stop before readiness does not run", func(t *testing.T) {
		var ran atomic.Bool
		w, _, _ := newTestWorker(func(context.Context) error {
			ran.Store(true)
			return nil
		}, Options{WaitReady: true})

		w.Start()
		require.NoError(t, w.Stop(context.Background()))
		assert.False(t, ran.Load())
	})

	t.Run("error triggers shutdown when configured", func(t *testing.T) {
		w, _, shutdowner := newTestWorker(func(context.Context) error {
			return errors.New("broker gone")
		}, Options{ShutdownOnError: true})

		w.Start()
		assert.Eventually(t, shutdowner.called.Load, time.Second, 5*time.Millisecond)
		require.NoError(t, w.Stop(context.Background()))
	})

	t.Run("error without shutdown option only logs", func(t *testing.T) {
		w, _, shutdowner := newTestWorker(func(context.Context) error {
			return errors.New("broker gone")
		}, Options{})

		w.Start()
		require.NoError(t, w.Stop(context.Background()))
		assert.False(t, shutdowner.called.Load())
	})

	t.Run("stop respects context deadline", func(t *testing.T) {
		release := make(chan struct{})
		w, _, _ := newTestWorker(func(context.Context) error {
			<-release
			return nil
		}, Options{})

		w.Start()
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := w.Stop(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		close(release)
	})

	t.Run("stop without start is a no-op", func(t *testing.T) {
		w, _, _ := newTestWorker(func(context.Context) error { return nil }, Options{})
		assert.NoError(t, w.Stop(context.Background()))
	})
}
