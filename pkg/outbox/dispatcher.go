package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/co2market/auth-service/pkg/broker"
	"github.com/co2market/auth-service/pkg/core/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const storeCallTimeout = 5 * time.Second

// Result counts what one dispatch pass did.
type Result struct {
	Claimed   int
	Published int
	Failed    int
	Abandoned int
	LeaseLost int
	// Released counts records handed back unattempted because too little of
	// the lease was left to publish and complete them.
	Released int
}

// Dispatcher forwards pending records to the broker.
type Dispatcher struct {
	store      Store
	publisher  broker.Publisher
	cfg        Config
	policy     retryPolicy
	propagator tracePropagator
	metrics    *dispatchMetrics
	limiter    *rate.Limiter
	log        *zap.Logger
	throttle   *logger.LogThrottler
	owner      string
	now        func() time.Time
}

// NewDispatcher builds a Dispatcher outside fx. cfg defaults are applied.
func NewDispatcher(store Store, publisher broker.Publisher, cfg Config, tp trace.TracerProvider, mp metric.MeterProvider, log *zap.Logger) (*Dispatcher, error) {
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	metrics, err := newDispatchMetrics(mp)
	if err != nil {
		return nil, err
	}
	return newDispatcher(store, publisher, cfg, newTracePropagator(tp), metrics, log), nil
}

func newDispatcher(
	store Store,
	publisher broker.Publisher,
	cfg Config,
	propagator tracePropagator,
	metrics *dispatchMetrics,
	log *zap.Logger,
) *Dispatcher {
	log = log.With(zap.String("component", "outbox"))
	d := &Dispatcher{
		store:      store,
		publisher:  publisher,
		cfg:        cfg,
		policy:     newRetryPolicy(cfg.Backoff),
		propagator: propagator,
		metrics:    metrics,
		log:        log,
		throttle:   logger.NewLogThrottler(log, time.Minute),
		owner:      newOwnerID(),
		now:        time.Now,
	}
	if cfg.PublishRate > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.PublishRate), max(1, int(cfg.PublishRate)))
	}
	return d
}

func newOwnerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "outbox"
	}
	return host + "-" + uuid.NewString()[:8]
}

// Run dispatches immediately and then on every interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("outbox dispatcher started",
		zap.String("owner", d.owner),
		zap.Duration("interval", d.cfg.Interval),
	)
	if _, err := d.AbandonExhausted(ctx); err != nil && ctx.Err() == nil {
		d.log.Warn("failed to abandon records over the retry ceiling", zap.Error(err))
	}

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
			d.throttle.Warn("claim", "outbox dispatch pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// DispatchOnce claims one batch and attempts each record in CreatedAt order.
// Records are processed until the batch is done or ctx is cancelled; unstarted
// records are released on cancellation.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (Result, error) {
	var res Result
	started := d.now()

	claimCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	events, err := d.store.Claim(claimCtx, ClaimRequest{
		Owner:      d.owner,
		Now:        started.UTC(),
		Lease:      d.cfg.LeaseDuration,
		Limit:      d.cfg.BatchSize,
		MaxRetries: d.cfg.MaxRetries,
	})
	cancel()
	if err != nil {
		return res, fmt.Errorf("failed to claim outbox events: %w", err)
	}
	res.Claimed = len(events)
	leaseEnd := started.Add(d.cfg.LeaseDuration)
	defer func() { d.metrics.recordPass(context.WithoutCancel(ctx), res.Claimed, d.now().Sub(started)) }()

	for i, ev := range events {
		if ctx.Err() != nil {
			d.release(events[i:])
			break
		}
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				d.release(events[i:])
				break
			}
		}
		if !d.leaseCovers(leaseEnd) {
			res.Released = len(events) - i
			d.log.Warn("outbox lease too short for the rest of the batch, releasing",
				zap.Int("released", res.Released),
				zap.Time("locked_until", leaseEnd),
			)
			d.release(events[i:])
			break
		}
		d.process(ctx, ev, &res)
	}

	if res.Claimed > 0 {
		d.log.Debug("outbox dispatch pass finished",
			zap.Int("claimed", res.Claimed),
			zap.Int("published", res.Published),
			zap.Int("failed", res.Failed),
			zap.Int("abandoned", res.Abandoned),
			zap.Int("lease_lost", res.LeaseLost),
			zap.Int("released", res.Released),
		)
	}
	return res, nil
}

// leaseCovers reports whether a publish and its completion update started now
// finish before the lease granted at claim time runs out.
func (d *Dispatcher) leaseCovers(leaseEnd time.Time) bool {
	return d.now().Add(d.cfg.attemptBudget()).Before(leaseEnd)
}

// process runs one attempt. The attempt is detached from ctx cancellation so
// an in-flight publish finishes and its outcome is recorded.
func (d *Dispatcher) process(ctx context.Context, ev *Event, res *Result) {
	ctx = context.WithoutCancel(ctx)
	log := d.log.With(
		zap.String("event_id", ev.EventID),
		zap.String("event_type", ev.EventType),
		zap.Int("retry_count", ev.RetryCount),
	)

	if err := d.publish(ctx, ev); err != nil {
		d.fail(ctx, log, ev, err, res)
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()
	if err := d.store.MarkPublished(storeCtx, ev.EventID, d.owner, d.now().UTC()); err != nil {
		if errors.Is(err, ErrLeaseLost) {
			res.LeaseLost++
			log.Warn("outbox lease lost after publish, event may be delivered twice")
			return
		}
		// The lease expires and the record is published again.
		log.Error("failed to mark outbox event published", zap.Error(err))
		return
	}
	res.Published++
	d.metrics.published.Add(ctx, 1, eventAttrs(ev))
	log.Debug("outbox event published")
}

func (d *Dispatcher) publish(ctx context.Context, ev *Event) error {
	if !json.Valid(ev.Payload) {
		return ErrInvalidPayload
	}

	ctx, span, headers := d.propagator.StartPublishSpan(ctx, ev, d.cfg.Topic)
	defer span.End()

	pubCtx, cancel := context.WithTimeout(ctx, d.cfg.PublishTimeout)
	defer cancel()

	err := d.publisher.Publish(pubCtx, broker.Message{
		Topic:      d.cfg.Topic,
		RoutingKey: ev.RoutingKey,
		MessageID:  ev.EventID,
		Type:       ev.EventType,
		Body:       ev.Payload,
		Headers:    headers,
		Timestamp:  ev.CreatedAt,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("publish timed out after %s: %w", d.cfg.PublishTimeout, err)
		}
		return err
	}
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, log *zap.Logger, ev *Event, cause error, res *Result) {
	now := d.now().UTC()
	retries := ev.RetryCount + 1
	f := Failure{
		Reason:        cause.Error(),
		FailedAt:      now,
		NextAttemptAt: d.policy.nextAttempt(now, retries),
		Abandon:       retries >= d.cfg.MaxRetries,
	}

	storeCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()
	if err := d.store.MarkFailed(storeCtx, ev.EventID, d.owner, f); err != nil {
		if errors.Is(err, ErrLeaseLost) {
			res.LeaseLost++
			log.Warn("outbox lease lost before failure was recorded", zap.NamedError("cause", cause))
			return
		}
		log.Error("failed to record outbox failure", zap.NamedError("cause", cause), zap.Error(err))
		return
	}

	res.Failed++
	d.metrics.failed.Add(ctx, 1, eventAttrs(ev))
	if f.Abandon {
		res.Abandoned++
		d.metrics.abandoned.Add(ctx, 1, eventAttrs(ev))
		log.Error("outbox event abandoned after reaching retry ceiling",
			zap.Int("max_retries", d.cfg.MaxRetries),
			zap.Error(cause),
		)
		return
	}
	d.throttle.Warn("publish:"+ev.RoutingKey, "outbox publish failed, will retry",
		zap.String("event_id", ev.EventID),
		zap.Int("retry_count", retries),
		zap.Time("next_attempt_at", f.NextAttemptAt),
		zap.Error(cause),
	)
}

func (d *Dispatcher) release(events []*Event) {
	ctx, cancel := context.WithTimeout(context.Background(), storeCallTimeout)
	defer cancel()
	for _, ev := range events {
		if err := d.store.Release(ctx, ev.EventID, d.owner, ""); err != nil && !errors.Is(err, ErrLeaseLost) {
			d.log.Warn("failed to release outbox lease", zap.String("event_id", ev.EventID), zap.Error(err))
		}
	}
}

// Redeliver publishes one unpublished record now, abandoned ones included.
// RetryCount is left unchanged. A failed attempt releases the lease and
// records the reason.
func (d *Dispatcher) Redeliver(ctx context.Context, eventID string) error {
	current, err := d.store.FindByEventID(ctx, eventID)
	if err != nil {
		return err
	}
	if current.Published {
		return ErrAlreadyPublished
	}

	ev, err := d.store.ClaimForRedelivery(ctx, eventID, d.owner, d.now().UTC(), d.cfg.LeaseDuration)
	if err != nil {
		return err
	}

	log := d.log.With(zap.String("event_id", eventID), zap.String("event_type", ev.EventType))
	if err := d.publish(ctx, ev); err != nil {
		if relErr := d.store.Release(context.WithoutCancel(ctx), eventID, d.owner, err.Error()); relErr != nil {
			log.Warn("failed to release outbox lease", zap.Error(relErr))
		}
		return fmt.Errorf("redelivery failed: %w", err)
	}

	if err := d.store.MarkPublished(context.WithoutCancel(ctx), eventID, d.owner, d.now().UTC()); err != nil {
		return fmt.Errorf("event published but not marked: %w", err)
	}
	d.metrics.published.Add(ctx, 1, eventAttrs(ev))
	log.Info("outbox event redelivered", zap.String("previous_status", string(current.Status)))
	return nil
}

// AbandonExhausted moves PENDING records already at or over the configured
// retry ceiling to ABANDONED so they show up in Abandoned. Claim never selects
// them, which happens when max-retries is lowered.
func (d *Dispatcher) AbandonExhausted(ctx context.Context) (int64, error) {
	storeCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()
	n, err := d.store.AbandonExhausted(storeCtx, d.cfg.MaxRetries, d.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		d.metrics.abandoned.Add(ctx, n)
		d.log.Error("outbox events abandoned after the retry ceiling was lowered",
			zap.Int64("count", n),
			zap.Int("max_retries", d.cfg.MaxRetries),
		)
	}
	return n, nil
}

// Abandoned lists records that reached the retry ceiling.
func (d *Dispatcher) Abandoned(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = d.cfg.BatchSize
	}
	return d.store.ListAbandoned(ctx, limit)
}
