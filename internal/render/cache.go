package render

import "sync"

// DefaultCapacity is the number of artifacts kept when no capacity is given.
const DefaultCapacity = 10

// Cache is a bounded fingerprint → artifact map with FIFO eviction: once more
// than Capacity entries exist, the oldest inserted entry is dropped. Updating
// an existing key keeps its position.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]string
	order    []string
}

// NewCache creates a cache holding at most capacity entries. A capacity of
// zero or less means DefaultCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]string, capacity),
	}
}

// Get returns the artifact for fingerprint.
func (c *Cache) Get(fingerprint string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[fingerprint]
	return v, ok
}

// Put stores artifact under fingerprint, evicting the oldest entries if needed.
func (c *Cache) Put(fingerprint, artifact string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[fingerprint]; !ok {
		c.order = append(c.order, fingerprint)
	}
	c.entries[fingerprint] = artifact

	for len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// Len returns the number of cached artifacts.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns the cached fingerprints, oldest first.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// Capacity returns the maximum number of entries.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]string, c.capacity)
	c.order = nil
}
