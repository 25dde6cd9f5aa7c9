// Package memcache is a process-local result cache with TTL expiry and
// strict FIFO eviction. It memoizes paid classification results so a repeat
// submission of the same content reference does not spend quota again.
//
// The cache is deliberately not durable: a restart clears it and callers
// must tolerate a full miss rate afterwards.
package memcache

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long an entry stays valid.
	DefaultTTL = 24 * time.Hour
	// DefaultMaxEntries bounds the number of live entries.
	DefaultMaxEntries = 1000
)

type entry[V any] struct {
	key       string
	value     V
	createdAt time.Time
}

// Cache is a bounded TTL cache. When the bound is exceeded the oldest entry
// by insertion order is evicted, regardless of access recency (FIFO, not
// LRU). Safe for concurrent use.
type Cache[V any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List // front = oldest insertion

	now func() time.Time
}

// New creates a Cache. Non-positive ttl or maxEntries fall back to the
// defaults.
func New[V any](ttl time.Duration, maxEntries int) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache[V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// Lookup returns the value stored under key. An entry older than the TTL is
// treated as absent; the read itself does not evict anything.
func (c *Cache[V]) Lookup(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[V])
	if c.now().Sub(e.createdAt) > c.ttl {
		return zero, false
	}
	return e.value, true
}

// Store inserts or overwrites the entry for key with the current time.
// An overwrite counts as a fresh insertion for eviction ordering. If the
// bound would be exceeded, the single oldest-inserted entry is evicted
// first.
func (c *Cache[V]) Store(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
	}

	for len(c.entries) >= c.maxEntries {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry[V]).key)
	}

	c.entries[key] = c.order.PushBack(&entry[V]{
		key:       key,
		value:     value,
		createdAt: c.now(),
	})
}

// Len returns the number of physically present entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
