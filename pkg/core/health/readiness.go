package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ComponentManager registers components that must become ready before the
// service reports readiness.
type ComponentManager interface {
	// AddComponent registers name and returns the function that marks it ready.
	AddComponent(name string) func()
}

// ReadinessChecker reports readiness for probes.
type ReadinessChecker interface {
	IsReady() bool
	Status() ReadinessStatus
}

// ReadinessWaiter blocks until every registered component is ready.
type ReadinessWaiter interface {
	WaitReady(ctx context.Context) error
}

type ComponentStatus struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	StartedAt time.Time `json:"started_at"`
	ReadyAt   time.Time `json:"ready_at,omitzero"`
}

type ReadinessStatus struct {
	Ready      bool              `json:"ready"`
	Components []ComponentStatus `json:"components"`
}

type component struct {
	ready     bool
	startedAt time.Time
	readyAt   time.Time
}

type readiness struct {
	mu         sync.RWMutex
	components map[string]*component
	sealed     bool
	readyCh    chan struct{}
	readyOnce  sync.Once
	log        *zap.Logger
}

func newReadiness(log *zap.Logger) *readiness {
	return &readiness{
		components: make(map[string]*component),
		readyCh:    make(chan struct{}),
		log:        log,
	}
}

func (r *readiness) AddComponent(name string) func() {
	if name == "" {
		panic("health: component name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.components[name]; exists {
		r.log.Warn("component already registered", zap.String("component", name))
	} else {
		r.components[name] = &component{startedAt: time.Now()}
	}
	return func() { r.markReady(name) }
}

func (r *readiness) markReady(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.components[name]
	if !ok || c.ready {
		return
	}
	c.ready = true
	c.readyAt = time.Now()
	r.log.Info("component ready", zap.String("component", name))
	r.checkAllReadyLocked()
}

// seal marks registration as complete. Readiness cannot be reached before
// seal, so a component registered late in startup is never skipped.
func (r *readiness) seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
	r.checkAllReadyLocked()
}

func (r *readiness) checkAllReadyLocked() {
	if !r.sealed {
		return
	}
	for _, c := range r.components {
		if !c.ready {
			return
		}
	}
	r.readyOnce.Do(func() {
		close(r.readyCh)
		r.log.Info("all components are ready", zap.Int("component_count", len(r.components)))
	})
}

func (r *readiness) IsReady() bool {
	select {
	case <-r.readyCh:
		return true
	default:
		return false
	}
}

func (r *readiness) Status() ReadinessStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := ReadinessStatus{
		Ready:      r.IsReady(),
		Components: make([]ComponentStatus, 0, len(r.components)),
	}
	for name, c := range r.components {
		status.Components = append(status.Components, ComponentStatus{
			Name:      name,
			Ready:     c.ready,
			StartedAt: c.startedAt,
			ReadyAt:   c.readyAt,
		})
	}
	sort.Slice(status.Components, func(i, j int) bool {
		return status.Components[i].Name < status.Components[j].Name
	})
	return status
}

func (r *readiness) WaitReady(ctx context.Context) error {
	select {
	case <-r.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
