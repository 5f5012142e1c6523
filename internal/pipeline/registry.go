package pipeline

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type registryEntry struct {
	pipeline *Pipeline
	lastUsed time.Time
}

// Registry owns one Pipeline per signed-in user. A user who presents a new
// tenant or dashboard reuses the same Pipeline, which clears on every fetch.
// Pipelines unused for longer than the idle timeout are dropped by Sweep.
type Registry struct {
	mu        sync.Mutex
	pipelines map[int64]*registryEntry
	factory   func() *Pipeline
	now       func() time.Time

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewRegistry(factory func() *Pipeline) *Registry {
	return &Registry{
		pipelines: make(map[int64]*registryEntry),
		factory:   factory,
		now:       time.Now,
	}
}

func (r *Registry) For(userID int64) *Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.pipelines[userID]
	if !ok {
		e = &registryEntry{pipeline: r.factory()}
		r.pipelines[userID] = e
	}
	e.lastUsed = r.now()
	return e.pipeline
}

// Drop resets and forgets the user's pipeline.
func (r *Registry) Drop(userID int64) {
	r.mu.Lock()
	e, ok := r.pipelines[userID]
	delete(r.pipelines, userID)
	r.mu.Unlock()

	if ok {
		e.pipeline.Reset()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pipelines)
}

// Sweep drops every pipeline not handed out by For within idle and returns
// how many were dropped.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var stale []*Pipeline
	for userID, e := range r.pipelines {
		if e.lastUsed.Before(cutoff) {
			stale = append(stale, e.pipeline)
			delete(r.pipelines, userID)
		}
	}
	r.mu.Unlock()

	for _, p := range stale {
		p.Reset()
	}
	return len(stale)
}

// StartSweep runs Sweep every interval until Close. It does nothing when
// idle or interval is not positive, or when a sweep is already running.
func (r *Registry) StartSweep(idle, interval time.Duration, logger *zap.Logger) {
	if idle <= 0 || interval <= 0 || r.stop != nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				if n := r.Sweep(idle); n > 0 {
					logger.Debug("dropped idle pipelines", zap.Int("dropped", n), zap.Int("remaining", r.Len()))
				}
			}
		}
	}()
}

// Close stops the sweep. Safe to call more than once.
func (r *Registry) Close() {
	if r.stop == nil {
		return
	}
	r.closeOnce.Do(func() {
		close(r.stop)
		<-r.done
	})
}
