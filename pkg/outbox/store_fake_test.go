package outbox

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/samber/lo"
)

// fakeStore is an in-memory Store with the same claim and lease rules as the
// database implementations.
type fakeStore struct {
	mu      sync.Mutex
	seq     int
	events  []*Event
	claims  []ClaimRequest
	claimFn func(req ClaimRequest) ([]*Event, error)

	markPublishedErr error
	markFailedErr    error
	appendErr        error
}

func newFakeStore(events ...*Event) *fakeStore {
	s := &fakeStore{}
	for _, ev := range events {
		_ = s.Append(context.Background(), ev)
	}
	return s
}

func (s *fakeStore) Append(_ context.Context, ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.seq++
	ev.ID = strconv.Itoa(s.seq)
	if ev.Status == "" {
		ev.Status = StatusPending
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeStore) Claim(_ context.Context, req ClaimRequest) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims = append(s.claims, req)
	if s.claimFn != nil {
		return s.claimFn(req)
	}

	eligible := lo.Filter(s.events, func(ev *Event, _ int) bool {
		return ev.Status == StatusPending &&
			!ev.Published &&
			ev.RetryCount < req.MaxRetries &&
			!ev.NextAttemptAt.After(req.Now) &&
			(ev.LockedUntil == nil || ev.LockedUntil.Before(req.Now))
	})
	slices.SortStableFunc(eligible, func(a, b *Event) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if len(eligible) > req.Limit {
		eligible = eligible[:req.Limit]
	}

	out := make([]*Event, 0, len(eligible))
	for _, ev := range eligible {
		ev.LockOwner = req.Owner
		ev.LockedUntil = lo.ToPtr(req.LockedUntil())
		out = append(out, clone(ev))
	}
	return out, nil
}

func (s *fakeStore) ClaimForRedelivery(_ context.Context, eventID, owner string, now time.Time, lease time.Duration) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.find(eventID)
	if !ok {
		return nil, ErrEventNotFound
	}
	if ev.Published || (ev.LockedUntil != nil && !ev.LockedUntil.Before(now)) {
		return nil, ErrLeaseLost
	}
	ev.LockOwner = owner
	ev.LockedUntil = lo.ToPtr(now.Add(lease))
	return clone(ev), nil
}

func (s *fakeStore) MarkPublished(_ context.Context, eventID, owner string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markPublishedErr != nil {
		return s.markPublishedErr
	}
	ev, ok := s.leased(eventID, owner)
	if !ok {
		return ErrLeaseLost
	}
	ev.Published = true
	ev.PublishedAt = lo.ToPtr(at)
	ev.Status = StatusPublished
	ev.LockOwner = ""
	ev.LockedUntil = nil
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, eventID, owner string, f Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markFailedErr != nil {
		return s.markFailedErr
	}
	ev, ok := s.leased(eventID, owner)
	if !ok {
		return ErrLeaseLost
	}
	ev.RetryCount++
	ev.ErrorMessage = f.Reason
	ev.NextAttemptAt = f.NextAttemptAt
	ev.LockOwner = ""
	ev.LockedUntil = nil
	if f.Abandon {
		ev.Status = StatusAbandoned
		ev.AbandonedAt = lo.ToPtr(f.FailedAt)
	}
	return nil
}

func (s *fakeStore) Release(_ context.Context, eventID, owner, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.leased(eventID, owner)
	if !ok {
		return ErrLeaseLost
	}
	if reason != "" {
		ev.ErrorMessage = reason
	}
	ev.LockOwner = ""
	ev.LockedUntil = nil
	return nil
}

func (s *fakeStore) AbandonExhausted(_ context.Context, maxRetries int, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, ev := range s.events {
		if ev.Status != StatusPending || ev.Published || ev.RetryCount < maxRetries {
			continue
		}
		if ev.LockedUntil != nil && !ev.LockedUntil.Before(at) {
			continue
		}
		ev.Status = StatusAbandoned
		ev.AbandonedAt = lo.ToPtr(at)
		n++
	}
	return n, nil
}

func (s *fakeStore) ListAbandoned(_ context.Context, limit int) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := lo.Filter(s.events, func(ev *Event, _ int) bool { return ev.Status == StatusAbandoned })
	if len(out) > limit {
		out = out[:limit]
	}
	return lo.Map(out, func(ev *Event, _ int) *Event { return clone(ev) }), nil
}

func (s *fakeStore) FindByEventID(_ context.Context, eventID string) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.find(eventID)
	if !ok {
		return nil, ErrEventNotFound
	}
	return clone(ev), nil
}

func (s *fakeStore) get(eventID string) *Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.find(eventID)
	if !ok {
		panic(errors.New("no event " + eventID))
	}
	return clone(ev)
}

func (s *fakeStore) find(eventID string) (*Event, bool) {
	return lo.Find(s.events, func(ev *Event) bool { return ev.EventID == eventID })
}

func (s *fakeStore) leased(eventID, owner string) (*Event, bool) {
	ev, ok := s.find(eventID)
	if !ok || ev.Published || ev.LockOwner != owner {
		return nil, false
	}
	return ev, true
}

func clone(ev *Event) *Event {
	c := *ev
	return &c
}
