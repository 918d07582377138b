package oracle

import (
	"sync"
	"time"
)

// ttlCache stores successful lookups per (supplier, product) pair.
//
// It is shared read/write across all concurrent workers within a run and
// across runs; staleness of an entry only delays detection, never corrupts
// it, so a plain mutex-guarded map is sufficient.
type ttlCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry

	puts       uint64
	pruneEvery uint64
}

type cacheEntry struct {
	lookup  Lookup
	expires time.Time
}

func newTTLCache(ttl time.Duration) *ttlCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ttlCache{
		ttl:        ttl,
		entries:    map[string]cacheEntry{},
		pruneEvery: 512,
	}
}

func (c *ttlCache) get(key string, now time.Time) (Lookup, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || now.After(e.expires) {
		return Lookup{}, false
	}
	return e.lookup, true
}

func (c *ttlCache) put(key string, l Lookup, now time.Time) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{lookup: l, expires: now.Add(c.ttl)}
	c.puts++
	if c.puts%c.pruneEvery == 0 {
		c.pruneLocked(now)
	}
	c.mu.Unlock()
}

func (c *ttlCache) pruneLocked(now time.Time) {
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
}

func (c *ttlCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
