package cache

import "sync"

// Cache is a thread-safe LRU cache holding at most capacity entries.
// Inserting past capacity evicts the least recently used entry.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	entries  map[K]*cacheEntry[K, V]
	order    lruList[K]
	capacity int

	hits      uint64
	misses    uint64
	evictions uint64
}

type cacheEntry[K comparable, V any] struct {
	value V
	node  *lruNode[K]
}

// New creates a cache. A capacity below 1 is treated as 1.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache[K, V]{
		entries:  make(map[K]*cacheEntry[K, V], capacity),
		capacity: capacity,
	}
}

// GetOrCreate returns the cached value or stores the result of create.
// create runs under the cache lock, so concurrent callers never build the
// same entry twice.
func (c *Cache[K, V]) GetOrCreate(key K, create func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.hits++
		c.order.touch(e.node)
		return e.value
	}
	c.misses++
	value := create()
	c.insertLocked(key, value)
	return value
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Len:       len(c.entries),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// insertLocked adds a missing key, evicting from the tail past capacity.
// Caller must hold c.mu.
func (c *Cache[K, V]) insertLocked(key K, value V) {
	c.entries[key] = &cacheEntry[K, V]{value: value, node: c.order.pushFront(key)}
	for len(c.entries) > c.capacity {
		old, ok := c.order.popBack()
		if !ok {
			break
		}
		delete(c.entries, old)
		c.evictions++
	}
}

// Stats contains cache statistics.
type Stats struct {
	Len       int
	Capacity  int
	Hits      uint64
	Misses    uint64
	HitRate   float64
	Evictions uint64
}
