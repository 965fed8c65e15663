package normalizer

import (
	"sync"
	"time"
)

// Window suppresses repeated unique ids for a bounded lifetime. Entries
// older than the TTL are evicted lazily on each new arrival, so the map
// never needs a background sweeper.
type Window struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewWindow creates a dedup window with the given TTL.
func NewWindow(ttl time.Duration, now func() time.Time) *Window {
	if now == nil {
		now = time.Now
	}
	return &Window{
		ttl:  ttl,
		now:  now,
		seen: make(map[string]time.Time),
	}
}

// FirstSeen records the id and reports whether this is its first
// arrival within the TTL. Later arrivals inside the window return
// false; once the window elapses the id counts as new again.
func (w *Window) FirstSeen(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	for k, t := range w.seen {
		if now.Sub(t) > w.ttl {
			delete(w.seen, k)
		}
	}

	if _, ok := w.seen[id]; ok {
		return false
	}
	w.seen[id] = now
	return true
}

// Len returns the current number of tracked ids.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}
