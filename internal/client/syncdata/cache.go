// Package syncdata keeps list/detail fetches consistent with server state.
// One Resource exists per resource kind; entries are keyed by the canonical
// filter signature, which is also the query string sent over the wire.
package syncdata

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrAborted marks a fetch superseded by a newer signature or cancelled by
// the caller. It must never surface as a user-facing error.
var ErrAborted = errors.New("fetch aborted")

type FetchFunc[T any] func(ctx context.Context, signature string) (T, error)

type entry[T any] struct {
	payload   T
	fetchedAt time.Time
}

type call[T any] struct {
	done   chan struct{}
	cancel context.CancelFunc
	result T
	err    error
}

// Resource caches one kind of data. At most one network request is in flight
// per signature; requesting a different signature cancels the previous
// request, and a result only lands in the cache while its signature is still
// the most recently requested one.
type Resource[T any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	fetch    FetchFunc[T]
	now      func() time.Time
	entries  map[string]entry[T]
	inflight map[string]*call[T]
	latest   string
}

func NewResource[T any](ttl time.Duration, fetch FetchFunc[T]) *Resource[T] {
	return &Resource[T]{
		ttl:      ttl,
		fetch:    fetch,
		now:      time.Now,
		entries:  make(map[string]entry[T]),
		inflight: make(map[string]*call[T]),
	}
}

// Get returns the cached payload for signature when fresh, otherwise fetches
// it. A concurrent Get for the same signature shares the in-flight outcome; a
// Get for a different signature cancels whatever is in flight.
func (r *Resource[T]) Get(ctx context.Context, signature string) (T, error) {
	r.mu.Lock()

	if cached, ok := r.entries[signature]; ok && r.now().Sub(cached.fetchedAt) < r.ttl {
		r.mu.Unlock()
		return cached.payload, nil
	}

	if c, ok := r.inflight[signature]; ok {
		r.latest = signature
		r.mu.Unlock()
		return r.await(ctx, c)
	}

	// Stale request suppression: a different signature in flight is now
	// obsolete and gets cancelled before the new fetch starts.
	for sig, c := range r.inflight {
		if sig != signature {
			c.cancel()
		}
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	c := &call[T]{done: make(chan struct{}), cancel: cancel}
	r.inflight[signature] = c
	r.latest = signature
	r.mu.Unlock()

	result, err := r.fetch(fetchCtx, signature)
	cancel()

	r.mu.Lock()
	if r.inflight[signature] == c {
		delete(r.inflight, signature)
	}
	switch {
	case err != nil:
		if errors.Is(err, context.Canceled) || fetchCtx.Err() != nil {
			c.err = ErrAborted
		} else {
			// Transport failures leave the cache untouched; any stale
			// entry stays servable.
			c.err = err
		}
	case r.latest != signature:
		// Completed after a newer signature took over: discard.
		c.err = ErrAborted
	default:
		c.result = result
		r.entries[signature] = entry[T]{payload: result, fetchedAt: r.now()}
	}
	r.mu.Unlock()

	close(c.done)
	return c.result, c.err
}

func (r *Resource[T]) await(ctx context.Context, c *call[T]) (T, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		var zero T
		return zero, ErrAborted
	}
}

// Cached returns the stored payload even when stale, for UIs that show the
// previous page while a refetch is running.
func (r *Resource[T]) Cached(signature string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cached, ok := r.entries[signature]
	return cached.payload, ok
}

// Invalidate evicts one signature after a mutation; the next Get refetches.
func (r *Resource[T]) Invalidate(signature string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, signature)
}

// InvalidateAll evicts every entry of this resource kind.
func (r *Resource[T]) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]entry[T])
}
