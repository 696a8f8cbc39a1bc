package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogThrottler_Warn(t *testing.T) {
	// Given: a throttler with a long interval
	core, logs := observer.New(zapcore.DebugLevel)
	throttler := NewLogThrottler(zap.New(core), time.Hour)

	// When: the same key warns three times and another key once
	throttler.Warn("broker", "publish failed")
	throttler.Warn("broker", "publish failed")
	throttler.Warn("broker", "publish failed")
	throttler.Warn("storage", "claim failed")

	// Then: only the first per key is a warning
	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.Equal(t, zapcore.DebugLevel, entries[2].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[3].Level)
}

func TestNewLogThrottler_DefaultInterval(t *testing.T) {
	assert.Equal(t, time.Minute, NewLogThrottler(zap.NewNop(), 0).interval)
}
