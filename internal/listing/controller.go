package listing

import (
	"context"
	"errors"
	"sync"

	"github.com/carecase/console/pkg/pagination"
)

var (
	// ErrStale is returned by Load when a newer load started or the
	// controller closed while the fetch was in flight. The result was
	// discarded.
	ErrStale = errors.New("listing: stale load discarded")
	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("listing: controller closed")
)

// FetchFunc retrieves the full raw collection from the remote API.
type FetchFunc[T Record] func(ctx context.Context) ([]T, error)

// Controller holds the raw records and filter state of one list screen.
// Every load supersedes the previous one; a load that finishes after a newer
// one started, or after Close, never touches state.
type Controller[T Record] struct {
	mu         sync.Mutex
	fetch      FetchFunc[T]
	order      SortOrder
	records    []T
	state      FilterState
	loaded     bool
	generation uint64
	// applied counts loads that replaced the records.
	applied  uint64
	lifetime context.Context
	cancel   context.CancelFunc
	closed   bool
}

// NewController creates a controller with default filter state.
func NewController[T Record](fetch FetchFunc[T], order SortOrder) *Controller[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller[T]{
		fetch:    fetch,
		order:    order,
		state:    DefaultFilterState(),
		lifetime: ctx,
		cancel:   cancel,
	}
}

// Load fetches the raw collection and replaces the stored records on
// success. On failure the previous records are kept.
func (c *Controller[T]) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.generation++
	gen := c.generation
	lifetime := c.lifetime
	c.mu.Unlock()

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(lifetime, cancel)
	defer stop()

	records, err := c.fetch(fetchCtx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.generation {
		return ErrStale
	}
	if err != nil {
		return err
	}
	c.records = records
	c.loaded = true
	c.applied++
	return nil
}

// Loaded reports whether at least one load has succeeded.
func (c *Controller[T]) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Filters returns the current filter state.
func (c *Controller[T]) Filters() FilterState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetFilters replaces the filter clauses. The page resets to 1 when any
// clause changed.
func (c *Controller[T]) SetFilters(criteria Criteria) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Criteria != criteria {
		c.state.Criteria = criteria
		c.state.Page = 1
	}
}

// SetPerPage changes the page size and returns to page 1.
func (c *Controller[T]) SetPerPage(perPage int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	perPage = pagination.NormalizePerPage(perPage)
	if perPage != c.state.PerPage {
		c.state.PerPage = perPage
		c.state.Page = 1
	}
}

// SetPage moves to page. Out-of-range values are clamped by View.
func (c *Controller[T]) SetPage(page int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Page = page
}

// View derives the current page. The stored page is clamped to the result
// so a page emptied by a deletion falls back to the last valid one.
func (c *Controller[T]) View() Result[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := Derive(c.records, c.state, c.order)
	c.state.Page = res.CurrentPage
	c.state.PerPage = res.PerPage
	return res
}

// Filtered returns every record that passes the filters, sorted, without
// pagination.
func (c *Controller[T]) Filtered() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Derive(c.records, c.state, c.order).Filtered
}

// Find returns the raw record with the given id.
func (c *Controller[T]) Find(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.records {
		if r.RecordID() == id {
			return r, true
		}
	}
	var zero T
	return zero, false
}

// Patch applies fn to the raw record with the given id and returns a
// function that restores the previous value. The restore is a no-op once a
// load has replaced the records. ok is false when no record matched.
func (c *Controller[T]) Patch(id string, fn func(*T)) (restore func(), ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.records {
		if c.records[i].RecordID() != id {
			continue
		}
		prev := c.records[i]
		applied := c.applied
		fn(&c.records[i])
		return func() { c.restore(id, prev, applied) }, true
	}
	return func() {}, false
}

func (c *Controller[T]) restore(id string, prev T, applied uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.applied != applied {
		return
	}
	for i := range c.records {
		if c.records[i].RecordID() == id {
			c.records[i] = prev
			return
		}
	}
}

// Close cancels any in-flight load. Later loads return ErrClosed.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
}
