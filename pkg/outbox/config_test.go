package outbox

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := newConfig(viper.New(), zap.NewNop())

		require.NoError(t, err)
		assert.Equal(t, 5*time.Second, cfg.Interval)
		assert.Equal(t, 5, cfg.MaxRetries)
		assert.Equal(t, 100, cfg.BatchSize)
		assert.Equal(t, 10*time.Second, cfg.PublishTimeout)
		assert.Equal(t, 30*time.Second, cfg.LeaseDuration)
		assert.Equal(t, "co2.events", cfg.Topic)
		assert.True(t, cfg.Backoff.IsEnabled())
		assert.Equal(t, 5*time.Second, cfg.Backoff.Initial)
		assert.Equal(t, 10*time.Minute, cfg.Backoff.Max)
	})

	t.Run("reads section", func(t *testing.T) {
		v := viper.New()
		v.Set("outbox.interval", "1s")
		v.Set("outbox.max-retries", 3)
		v.Set("outbox.topic", "test.events")
		v.Set("outbox.backoff.enabled", false)

		cfg, err := newConfig(v, zap.NewNop())

		require.NoError(t, err)
		assert.Equal(t, time.Second, cfg.Interval)
		assert.Equal(t, 3, cfg.MaxRetries)
		assert.Equal(t, "test.events", cfg.Topic)
		assert.False(t, cfg.Backoff.IsEnabled())
	})

	t.Run("lease must outlive publish timeout", func(t *testing.T) {
		v := viper.New()
		v.Set("outbox.publish-timeout", "30s")
		v.Set("outbox.lease-duration", "10s")

		_, err := newConfig(v, zap.NewNop())

		assert.ErrorContains(t, err, "lease-duration")
	})

	t.Run("lease must also cover the completion update", func(t *testing.T) {
		v := viper.New()
		v.Set("outbox.publish-timeout", "10s")
		v.Set("outbox.lease-duration", "12s")

		_, err := newConfig(v, zap.NewNop())

		assert.ErrorContains(t, err, "lease-duration (12s)")
	})
}

func TestStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusPublished))
	assert.True(t, StatusPending.CanTransitionTo(StatusAbandoned))
	assert.True(t, StatusAbandoned.CanTransitionTo(StatusPublished))
	assert.False(t, StatusAbandoned.CanTransitionTo(StatusPending))
	assert.False(t, StatusPublished.CanTransitionTo(StatusPending))
	assert.False(t, StatusPublished.CanTransitionTo(StatusAbandoned))
}
