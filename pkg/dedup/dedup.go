// Package dedup suppresses QoS1 redeliveries by remembering recently seen
// message identifiers for a TTL.
package dedup

import (
	"sync"
	"time"
)

type Deduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	max  int
	seen map[string]time.Time // id -> expiry
}

func New(ttl time.Duration, max int) *Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if max <= 0 {
		max = 10000
	}
	return &Deduper{ttl: ttl, max: max, seen: make(map[string]time.Time, max)}
}

// ShouldProcess reports whether id was not seen within the TTL and records
// it. An empty id is always processed.
func (d *Deduper) ShouldProcess(id string) bool {
	if id == "" {
		return true
	}
	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if exp, ok := d.seen[id]; ok && now.Before(exp) {
		return false
	}
	d.seen[id] = now.Add(d.ttl)
	if len(d.seen) > d.max {
		d.evictLocked(now)
	}
	return true
}

// Forget removes id so a later redelivery is processed again. Used when
// handling failed after the id was recorded.
func (d *Deduper) Forget(id string) {
	d.mu.Lock()
	delete(d.seen, id)
	d.mu.Unlock()
}

// evictLocked drops expired entries first; if the map is still over
// capacity the oldest entries go too. Map iteration order is random, which
// is fine for a best-effort cache.
func (d *Deduper) evictLocked(now time.Time) {
	for id, exp := range d.seen {
		if now.After(exp) {
			delete(d.seen, id)
		}
		if len(d.seen) <= d.max {
			return
		}
	}
	for id := range d.seen {
		delete(d.seen, id)
		if len(d.seen) <= d.max {
			return
		}
	}
}
