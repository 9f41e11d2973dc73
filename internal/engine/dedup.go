package engine

import (
	"sync"
	"time"
)

// dedup remembers recently processed signal IDs for a TTL window so a signal
// can never be applied twice even if it reaches the executor more than once.
type dedup struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
}

func newDedup(ttl time.Duration) *dedup {
	return &dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// isDuplicate records the ID and reports whether it was already seen inside
// the TTL window.
func (d *dedup) isDuplicate(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.seen[id]; ok && time.Since(t) < d.ttl {
		return true
	}
	d.seen[id] = time.Now()
	return false
}

// cleanup drops entries older than the TTL.
func (d *dedup) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	cutoff := time.Now().Add(-d.ttl)
	for id, t := range d.seen {
		if t.Before(cutoff) {
			delete(d.seen, id)
		}
	}
}
