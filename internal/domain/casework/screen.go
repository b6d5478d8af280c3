package casework

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/carecase/console/internal/action"
	"github.com/carecase/console/internal/listing"
)

// Screen is one operator's open list of a feature: its List Controller and
// the Action Sequencer guarding its mutations.
type Screen[T listing.Record] struct {
	Operator string
	List     *listing.Controller[T]
	Actions  *action.Sequencer

	mu       sync.Mutex
	lastUsed time.Time
	inUse    int
}

func (s *Screen[T]) acquire(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.inUse++
	s.mu.Unlock()
}

func (s *Screen[T]) release(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.inUse--
	s.mu.Unlock()
}

// evictable reports whether the screen has been idle since before cutoff
// with no request holding it.
func (s *Screen[T]) evictable(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inUse == 0 && s.lastUsed.Before(cutoff)
}

// Refresh reloads the list. A load superseded by a newer one is not a
// failure: the newer load carries the fresh data.
func (s *Screen[T]) Refresh(ctx context.Context) error {
	err := s.List.Load(ctx)
	if errors.Is(err, listing.ErrStale) {
		return nil
	}
	return err
}

// optimisticStatus returns the optimistic hook that sets the record's status
// to the action's target status until the refresh replaces it.
func optimisticStatus[T listing.Record](list *listing.Controller[T]) action.Optimistic {
	return func(spec action.Spec, desc action.Descriptor) func() {
		if spec.ToStatus == "" {
			return nil
		}
		restore, ok := list.Patch(desc.RecordID, func(r *T) {
			if s, ok := any(r).(StatusSetter); ok {
				s.SetRecordStatus(spec.ToStatus)
			}
		})
		if !ok {
			return nil
		}
		return restore
	}
}

// ScreenFactory builds the screen of an operator.
type ScreenFactory[T listing.Record] func(operator string) *Screen[T]

// Registry keeps the open screens of one feature keyed by operator.
type Registry[T listing.Record] struct {
	mu      sync.Mutex
	screens map[string]*Screen[T]
	build   ScreenFactory[T]
	idleTTL time.Duration
	now     func() time.Time
}

// NewRegistry creates a registry. idleTTL <= 0 disables eviction.
func NewRegistry[T listing.Record](build ScreenFactory[T], idleTTL time.Duration) *Registry[T] {
	return &Registry[T]{
		screens: make(map[string]*Screen[T]),
		build:   build,
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

// Get returns the operator's screen, mounting it on first use. The screen is
// held until release is called and is never evicted while held.
func (r *Registry[T]) Get(operator string) (s *Screen[T], release func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.screens[operator]
	if !ok {
		s = r.build(operator)
		s.Operator = operator
		r.screens[operator] = s
	}
	return s, r.hold(s)
}

// Lookup returns the operator's screen without mounting one. When ok, the
// screen is held until release is called.
func (r *Registry[T]) Lookup(operator string) (s *Screen[T], release func(), ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok = r.screens[operator]
	if !ok {
		return nil, func() {}, false
	}
	return s, r.hold(s), true
}

// hold must be called with r.mu held.
func (r *Registry[T]) hold(s *Screen[T]) func() {
	s.acquire(r.now())
	var once sync.Once
	return func() {
		once.Do(func() { s.release(r.now()) })
	}
}

// Drop unmounts the operator's screen. Loads still in flight are discarded.
func (r *Registry[T]) Drop(operator string) bool {
	r.mu.Lock()
	s, ok := r.screens[operator]
	delete(r.screens, operator)
	r.mu.Unlock()
	if ok {
		s.List.Close()
	}
	return ok
}

// Evict unmounts screens idle longer than the TTL. Screens held by a request
// or with an action in flight are kept. It returns the number of screens
// evicted.
func (r *Registry[T]) Evict() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var evicted []*Screen[T]
	for op, s := range r.screens {
		if s.evictable(cutoff) && s.Actions.State() != action.StateInFlight {
			evicted = append(evicted, s)
			delete(r.screens, op)
		}
	}
	r.mu.Unlock()

	for _, s := range evicted {
		s.List.Close()
	}
	return len(evicted)
}

// Len returns the number of mounted screens.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.screens)
}

// Close unmounts every screen.
func (r *Registry[T]) Close() {
	r.mu.Lock()
	screens := r.screens
	r.screens = make(map[string]*Screen[T])
	r.mu.Unlock()
	for _, s := range screens {
		s.List.Close()
	}
}
