// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package decision

import (
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/guildhall/guildhall/internal/behavior"
)

// DefaultCacheTTL is the cache entry lifetime in simulated time units (ticks).
const DefaultCacheTTL = 300

// Cache memoizes computed decisions keyed by situation fingerprint.
// Workers are never writers here; Put happens on the simulation goroutine
// during Poll, so a single mutex suffices and reads tolerate staleness.
// The cache is advisory: a miss costs latency, never correctness.
type Cache struct {
	mu      sync.Mutex
	ttl     uint64
	entries map[string]cacheEntry
}

type cacheEntry struct {
	decision  behavior.Decision
	expiresAt uint64
	taskID    ulid.ULID // last writer, for observability
}

// NewCache creates a cache whose entries expire ttl ticks after insertion.
func NewCache(ttl uint64) *Cache {
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

// Get returns the cached decision for key if present and unexpired at tick
// now. Expired entries are treated as absent and dropped.
func (c *Cache) Get(key string, now uint64) (behavior.Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return behavior.Decision{}, false
	}
	if now >= e.expiresAt {
		delete(c.entries, key)
		return behavior.Decision{}, false
	}
	return e.decision, true
}

// Put stores a decision. Last writer wins per key.
func (c *Cache) Put(key string, d behavior.Decision, now uint64, taskID ulid.ULID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{decision: d, expiresAt: now + c.ttl, taskID: taskID}
}

// Len returns the number of entries, including any not yet lazily expired.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep drops entries expired at tick now. Called opportunistically; Get
// already ignores expired entries.
func (c *Cache) Sweep(now uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now >= e.expiresAt {
			delete(c.entries, k)
		}
	}
}
