package outbox

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryPolicy computes when a failed record becomes eligible again.
type retryPolicy struct {
	cfg BackoffConfig
}

func newRetryPolicy(cfg BackoffConfig) retryPolicy {
	return retryPolicy{cfg: cfg}
}

// nextAttempt returns the eligibility time after the attempt that brought the
// record to retryCount failures.
func (p retryPolicy) nextAttempt(now time.Time, retryCount int) time.Time {
	if !p.cfg.IsEnabled() {
		return now
	}
	return now.Add(p.delay(retryCount))
}

func (p retryPolicy) delay(retryCount int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.Initial
	b.MaxInterval = p.cfg.Max
	b.Multiplier = p.cfg.Multiplier
	b.RandomizationFactor = p.cfg.Jitter
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.InitialInterval
	for i := 0; i < retryCount; i++ {
		d = b.NextBackOff()
	}
	return d
}
