// Package cache implements the query result cache described in
// spec.md §3.4/§4.8: normalized-command -> result entries with a TTL,
// invalidated by top-level key on every mutation.
package cache

import (
	"strings"
	"sync"
)

type entry struct {
	result    string
	topKey    string
	expiresAt int64
}

// Cache maps a normalized command string to its cached result,
// alongside a reverse index from top-level key to the set of cached
// commands that depend on it, so a mutation can invalidate in O(deps)
// rather than scanning every entry.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	byKey   map[string]map[string]bool
	ttl     int64
}

// New returns an empty cache with the given default TTL in seconds.
func New(ttlSeconds int64) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		byKey:   make(map[string]map[string]bool),
		ttl:     ttlSeconds,
	}
}

// Put records command's result for topKey, expiring at now+ttl.
func (c *Cache) Put(command, topKey, result string, now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[command] = entry{result: result, topKey: topKey, expiresAt: now + c.ttl}
	deps, ok := c.byKey[topKey]
	if !ok {
		deps = make(map[string]bool)
		c.byKey[topKey] = deps
	}
	deps[command] = true
}

// Get returns the cached result for command, or ok=false on miss or
// expiry. An expired entry is evicted as a side effect of the lookup.
func (c *Cache) Get(command string, now int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[command]
	if !ok {
		return "", false
	}
	if e.expiresAt <= now {
		c.evict(command, e.topKey)
		return "", false
	}
	return e.result, true
}

func (c *Cache) evict(command, topKey string) {
	delete(c.entries, command)
	if deps, ok := c.byKey[topKey]; ok {
		delete(deps, command)
		if len(deps) == 0 {
			delete(c.byKey, topKey)
		}
	}
}

// Invalidate drops every cache entry registered against mutatedKey,
// plus any broader entry whose key-path contains mutatedKey as a
// substring, per spec.md §4.8's invalidation rule.
func (c *Cache) Invalidate(mutatedKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if deps, ok := c.byKey[mutatedKey]; ok {
		for command := range deps {
			delete(c.entries, command)
		}
		delete(c.byKey, mutatedKey)
	}
	for topKey, deps := range c.byKey {
		if topKey == mutatedKey {
			continue
		}
		if strings.Contains(topKey, mutatedKey) {
			for command := range deps {
				delete(c.entries, command)
			}
			delete(c.byKey, topKey)
		}
	}
}

// Sweep evicts every entry expired as of now, for the scheduler's
// periodic cache cleanup tick (spec.md §4.10).
func (c *Cache) Sweep(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for command, e := range c.entries {
		if e.expiresAt <= now {
			c.evict(command, e.topKey)
		}
	}
}

// Flush empties the entire cache, for the FLUSHCACHE verb.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	c.byKey = make(map[string]map[string]bool)
}

// Len reports the number of cached entries, used by metrics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
