package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReadiness(t *testing.T) {
	t.Run("not ready before seal even when all components are ready", func(t *testing.T) {
		r := newReadiness(zap.NewNop())
		r.AddComponent("mongo")()

		assert.False(t, r.IsReady())

		r.seal()
		assert.True(t, r.IsReady())
	})

	t.Run("ready once every component is marked", func(t *testing.T) {
		r := newReadiness(zap.NewNop())
		markMongo := r.AddComponent("mongo")
		markBroker := r.AddComponent("rabbitmq")
		r.seal()

		markMongo()
		assert.False(t, r.IsReady())

		markBroker()
		assert.True(t, r.IsReady())
	})

	t.Run("duplicate registration keeps one component", func(t *testing.T) {
		r := newReadiness(zap.NewNop())
		r.AddComponent("mongo")
		r.AddComponent("mongo")

		assert.Len(t, r.Status().Components, 1)
	})

	t.Run("panics on empty name", func(t *testing.T) {
		r := newReadiness(zap.NewNop())
		assert.Panics(t, func() { r.AddComponent("") })
	})

	t.Run("status lists components sorted by name", func(t *testing.T) {
		r := newReadiness(zap.NewNop())
		r.AddComponent("rabbitmq")
		r.AddComponent("mongo")()

		status := r.Status()

		require.Len(t, status.Components, 2)
		assert.Equal(t, "mongo", status.Components[0].Name)
		assert.True(t, status.Components[0].Ready)
		assert.Equal(t, "rabbitmq", status.Components[1].Name)
		assert.False(t, status.Components[1].Ready)
	})
}

func TestReadiness_WaitReady(t *testing.T) {
	t.Run("returns when ready", func(t *testing.T) {
		r := newReadiness(zap.NewNop())
		mark := r.AddComponent("postgres")
		r.seal()

		done := make(chan error, 1)
		go func() { done <- r.WaitReady(context.Background()) }()

		mark()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("WaitReady did not return")
		}
	})

	t.Run("returns context error when cancelled", func(t *testing.T) {
		r := newReadiness(zap.NewNop())
		r.AddComponent("postgres")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, r.WaitReady(ctx), context.Canceled)
	})
}
