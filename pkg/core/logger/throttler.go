package logger

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LogThrottler emits a Warn at most once per interval per key and demotes
// the rest to Debug. Used for failures that repeat every poll, such as an
// unreachable broker.
type LogThrottler struct {
	log      *zap.Logger
	interval time.Duration
	limiters sync.Map // key -> *rate.Limiter
}

// NewLogThrottler returns a throttler. interval defaults to one minute.
func NewLogThrottler(log *zap.Logger, interval time.Duration) *LogThrottler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &LogThrottler{log: log, interval: interval}
}

// Warn logs msg at Warn if key has not warned within the interval, else at Debug.
func (t *LogThrottler) Warn(key, msg string, fields ...zap.Field) {
	if t.limiter(key).Allow() {
		t.log.Warn(msg, fields...)
		return
	}
	t.log.Debug(msg, fields...)
}

func (t *LogThrottler) limiter(key string) *rate.Limiter {
	if l, ok := t.limiters.Load(key); ok {
		return l.(*rate.Limiter)
	}
	l, _ := t.limiters.LoadOrStore(key, rate.NewLimiter(rate.Every(t.interval), 1))
	return l.(*rate.Limiter)
}
