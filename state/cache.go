package state

import (
	"sync"
	"sync/atomic"
)

// SharedCache is the process-wide mapping from key to current value. Entry
// presence is distinct from the value itself: a key with no entry falls
// through to durable or initial resolution. Entries never hold nil; the
// engine resolves every write through the safe-default rules first.
type SharedCache struct {
	entries map[string]interface{}
	mu      sync.RWMutex
	hits    uint64
	misses  uint64
}

func NewSharedCache() *SharedCache {
	return &SharedCache{
		entries: make(map[string]interface{}),
	}
}

func (c *SharedCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	value, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	atomic.AddUint64(&c.hits, 1)
	return value, true
}

// Has reports entry presence without touching the hit/miss counters.
func (c *SharedCache) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, exists := c.entries[key]
	return exists
}

func (c *SharedCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = value
}

func (c *SharedCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

func (c *SharedCache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	return keys
}

func (c *SharedCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

func (c *SharedCache) Stats() (hits, misses uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses)
}
