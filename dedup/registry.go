package dedup

import (
	"context"
	"sync"
	"time"
)

type entryState int

const (
	statePending entryState = iota
	stateResolved
	stateFailed
)

// Handle is a broadcast-once result cell shared by the owner execution and
// every coalesced waiter. It is resolved or failed exactly once by the owner;
// any number of goroutines may await it concurrently.
type Handle struct {
	done chan struct{}

	mu    sync.Mutex
	state entryState
	value any
	err   error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Await blocks until the handle is terminal or ctx is done. A waiter's own
// context cancellation only releases that waiter; the owner execution and the
// other waiters are unaffected.
func (h *Handle) Await(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return h.value, h.err
	}
}

func (h *Handle) resolve(value any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != statePending {
		panic("dedup: handle resolved twice")
	}
	h.state = stateResolved
	h.value = value
	close(h.done)
}

func (h *Handle) fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != statePending {
		panic("dedup: handle failed after terminal state")
	}
	h.state = stateFailed
	h.err = err
	close(h.done)
}

type entry struct {
	fingerprint string
	handle      *Handle
	createdAt   time.Time
	evict       *time.Timer
}

// registry tracks the single live entry per fingerprint. lookupOrInsert is one
// atomic step under the mutex so two callers can never both observe a miss.
type registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*entry)}
}

// lookupOrInsert returns the live entry for fingerprint, creating one when
// absent. The second result is true when the caller created the entry and is
// therefore the owner responsible for resolving it.
func (r *registry) lookupOrInsert(fingerprint string, now time.Time) (*entry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, false, ErrClosed
	}
	if e, ok := r.entries[fingerprint]; ok {
		return e, false, nil
	}

	e := &entry{
		fingerprint: fingerprint,
		handle:      newHandle(),
		createdAt:   now,
	}
	r.entries[fingerprint] = e
	return e, true, nil
}

// remove deletes the entry for fingerprint. Idempotent; removing an absent or
// superseded entry is a no-op.
func (r *registry) remove(e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.entries[e.fingerprint]
	if !ok || current != e {
		return
	}
	if e.evict != nil {
		e.evict.Stop()
	}
	delete(r.entries, e.fingerprint)
}

// scheduleEvict starts the TTL timer for a terminal entry. With ttl <= 0 the
// entry is removed immediately, matching the variants that carried no grace
// window at all.
func (r *registry) scheduleEvict(e *entry, ttl time.Duration) {
	if ttl <= 0 {
		r.remove(e)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		delete(r.entries, e.fingerprint)
		return
	}
	if current, ok := r.entries[e.fingerprint]; !ok || current != e {
		return
	}
	e.evict = time.AfterFunc(ttl, func() { r.remove(e) })
}

// close stops every pending eviction timer and rejects further inserts.
// Entries still pending keep their handles so in-flight waiters are not
// orphaned; their owners resolve or fail them as usual.
func (r *registry) close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for fingerprint, e := range r.entries {
		if e.evict != nil {
			e.evict.Stop()
		}
		delete(r.entries, fingerprint)
	}
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
