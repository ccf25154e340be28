package recovery

import (
	"sync"
	"time"
)

// responseCache keeps the last good result per (component, key) so the
// USE_CACHED_RESPONSE strategy has something to serve when the live
// call is down. Bounded by evicting the oldest insertion; this is a
// degradation aid, not a performance cache, so recency bookkeeping
// beyond insertion order is not worth the complexity.
type responseCache struct {
	mu      sync.Mutex
	maxSize int
	entries map[string]cachedResponse
	order   []string
}

type cachedResponse struct {
	value    any
	storedAt time.Time
}

func newResponseCache(maxSize int) *responseCache {
	if maxSize < 1 {
		maxSize = 64
	}
	return &responseCache{
		maxSize: maxSize,
		entries: make(map[string]cachedResponse),
	}
}

func cacheKey(component, key string) string {
	return component + "\x00" + key
}

// Put stores a successful result. Empty keys are not cached; they
// would alias unrelated calls.
func (c *responseCache) Put(component, key string, value any) {
	if key == "" {
		return
	}
	k := cacheKey(component, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[k]; !exists {
		c.order = append(c.order, k)
		for len(c.order) > c.maxSize {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
	}
	c.entries[k] = cachedResponse{value: value, storedAt: time.Now()}
}

// Get returns the cached value and its age.
func (c *responseCache) Get(component, key string) (any, time.Duration, bool) {
	if key == "" {
		return nil, 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[cacheKey(component, key)]
	if !ok {
		return nil, 0, false
	}
	return entry.value, time.Since(entry.storedAt), true
}

// Len returns the number of cached responses.
func (c *responseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
