package api

import (
	"container/list"
	"sync"
	"time"
)

// Signed storage URLs expire server-side; entries older than this are
// treated as absent so callers re-fetch the draft for a fresh URL.
const signedURLTTL = 45 * time.Minute

// lruCache is a thread-safe LRU cache with per-entry expiry, used for
// signed document URLs.
type lruCache struct {
	capacity int
	cache    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
	now      func() time.Time
}

// cacheEntry represents one cached signed URL
type cacheEntry struct {
	key       string
	value     string
	expiresAt time.Time
}

// newLRUCache creates a new LRU cache with the specified capacity
func newLRUCache(capacity int) *lruCache {
	return &lruCache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
		now:      time.Now,
	}
}

// Get retrieves a value from the cache.
// Returns false for missing or expired entries.
func (c *lruCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.cache[key]
	if !exists {
		return "", false
	}

	entry := elem.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.lru.Remove(elem)
		delete(c.cache, key)
		return "", false
	}

	// Move to front (most recently used)
	c.lru.MoveToFront(elem)
	return entry.value, true
}

// Put adds or updates a value in the cache, resetting its expiry
func (c *lruCache) Put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry := c.now().Add(signedURLTTL)

	if elem, exists := c.cache[key]; exists {
		c.lru.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = expiry
		return
	}

	// Evict oldest if at capacity
	if c.lru.Len() >= c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).key)
		}
	}

	entry := &cacheEntry{key: key, value: value, expiresAt: expiry}
	elem := c.lru.PushFront(entry)
	c.cache[key] = elem
}

// Len returns the current number of items in the cache
func (c *lruCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Clear removes all items from the cache
func (c *lruCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*list.Element)
	c.lru = list.New()
}
