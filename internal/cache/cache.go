// Package cache provides the in-memory result cache shared by all generated
// operations. Results are stored per entity-type namespace under a query key
// with an optional time-to-live.
//
// Invalidation is generation-based: every namespace carries a generation
// counter that is bumped when the namespace is invalidated. A populate
// carries the generation observed before the storage call and is discarded
// when the generation has advanced, so a read that raced a concurrent write
// can never re-install data computed before that write's invalidation.
package cache

import (
	"sync"
	"time"
)

// Cache is a TTL-aware result cache with per-entity-type namespaces.
// All methods are safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	namespaces map[string]*namespace
}

// namespace holds the entries and generation counter for one entity-type.
// Each namespace has its own lock so entity-types do not contend.
type namespace struct {
	mu      sync.RWMutex
	gen     uint64
	entries map[string]entry
}

// entry is one memoized result.
type entry struct {
	value     any
	gen       uint64
	createdAt time.Time
	ttl       time.Duration
}

// expired reports whether the entry's TTL has elapsed. Entries without a TTL
// never time-expire.
func (e entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.After(e.createdAt.Add(e.ttl))
}

// New creates an empty result cache.
func New() *Cache {
	return &Cache{
		namespaces: make(map[string]*namespace),
	}
}

// ns returns the namespace for the entity-type, creating it on first use.
func (c *Cache) ns(entityType string) *namespace {
	c.mu.RLock()
	n, ok := c.namespaces[entityType]
	c.mu.RUnlock()
	if ok {
		return n
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok = c.namespaces[entityType]; ok {
		return n
	}
	n = &namespace{entries: make(map[string]entry)}
	c.namespaces[entityType] = n
	return n
}

// Generation returns the current generation of the entity-type's namespace.
// Callers snapshot the generation before a storage read and pass it to Put.
func (c *Cache) Generation(entityType string) uint64 {
	n := c.ns(entityType)
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.gen
}

// Get returns the cached value for the key if present and unexpired.
// Expired entries are removed on access, so a value past its TTL is never
// returned.
func (c *Cache) Get(entityType, key string) (any, bool) {
	n := c.ns(entityType)

	n.mu.RLock()
	e, ok := n.entries[key]
	gen := n.gen
	n.mu.RUnlock()
	if !ok || e.gen != gen {
		return nil, false
	}

	if e.expired(time.Now()) {
		n.mu.Lock()
		// Re-check under the write lock: the entry may have been replaced.
		if cur, ok := n.entries[key]; ok && cur.createdAt.Equal(e.createdAt) {
			delete(n.entries, key)
		}
		n.mu.Unlock()
		return nil, false
	}

	return e.value, true
}

// Put stores a value under the key with the given TTL (ttl <= 0 means no
// time expiry). The write is discarded and false is returned when the
// namespace generation has advanced past observedGen, meaning an
// invalidation completed after the caller fetched the value from storage.
func (c *Cache) Put(entityType, key string, value any, observedGen uint64, ttl time.Duration) bool {
	n := c.ns(entityType)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.gen != observedGen {
		// Generation moved; the value predates the latest invalidation.
		return false
	}
	n.entries[key] = entry{
		value:     value,
		gen:       observedGen,
		createdAt: time.Now(),
		ttl:       ttl,
	}
	return true
}

// Invalidate atomically removes all entries for the entity-type and bumps
// the namespace generation so in-flight populates observe the change.
// Returns the new generation.
func (c *Cache) Invalidate(entityType string) uint64 {
	n := c.ns(entityType)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.gen++
	n.entries = make(map[string]entry)
	return n.gen
}

// InvalidateKey removes a single entry without bumping the namespace
// generation. Use it for targeted eviction of a by-identifier key when the
// rest of the namespace stays valid; mutations should still call Invalidate,
// since list and count keys are not derivable from a single record.
func (c *Cache) InvalidateKey(entityType, key string) {
	n := c.ns(entityType)

	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.entries, key)
}

// Len returns the number of unexpired entries in the entity-type's namespace.
func (c *Cache) Len(entityType string) int {
	n := c.ns(entityType)
	now := time.Now()

	n.mu.RLock()
	defer n.mu.RUnlock()
	count := 0
	for _, e := range n.entries {
		if !e.expired(now) && e.gen == n.gen {
			count++
		}
	}
	return count
}
