package cache

import (
	"container/list"
	"sync"
	"time"
)

// MemoryCache is the in-process LRU tier. It is bounded both by total
// payload bytes and by entry count, and drops entries older than its TTL.
type MemoryCache struct {
	maxBytes   int64
	maxEntries int
	ttl        time.Duration
	size       int64

	// LRU implementation, front is most recently used
	items    map[string]*list.Element
	eviction *list.List

	mu    sync.Mutex
	now   func() time.Time
	stats Stats

	onEvict func(key string, reason EvictReason)
}

type memoryEntry struct {
	key        string
	res        *Resource
	size       int64
	created    time.Time
	lastAccess time.Time
	hits       int64
}

// NewMemoryCache creates a memory cache. A zero maxEntries or ttl disables
// that bound.
func NewMemoryCache(maxBytes int64, maxEntries int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		maxBytes:   maxBytes,
		maxEntries: maxEntries,
		ttl:        ttl,
		items:      make(map[string]*list.Element),
		eviction:   list.New(),
		now:        time.Now,
		stats: Stats{
			MaxBytes:   maxBytes,
			MaxEntries: maxEntries,
		},
	}
}

// SetClock replaces the time source. Tests use it to drive TTL expiry.
func (c *MemoryCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Now returns the cache's current time.
func (c *MemoryCache) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now()
}

// OnEvict registers a callback invoked, with the lock held, for every
// entry that leaves the cache.
func (c *MemoryCache) OnEvict(fn func(key string, reason EvictReason)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Get returns the resource for key and marks it most recently used.
// Expired entries are removed and reported as a miss.
func (c *MemoryCache) Get(key string) (*Resource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}

	entry := elem.Value.(*memoryEntry)
	if c.expired(entry, now) {
		c.removeElement(elem, EvictExpired)
		c.stats.Misses++
		return nil, false
	}

	c.eviction.MoveToFront(elem)
	entry.hits++
	entry.lastAccess = now

	c.stats.Hits++
	c.stats.LastAccess = now
	return entry.res, true
}

// Put stores data under key. While the new payload would overflow the byte
// budget, or the entry count is at its limit, the least recently used entry
// is evicted. A payload bigger than the whole budget is rejected with
// ErrItemTooLarge and nothing is evicted.
func (c *MemoryCache) Put(key string, data []byte, mimeType string) (*Resource, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	incoming := int64(len(data))
	if incoming > c.maxBytes {
		c.stats.Rejections++
		return nil, ErrItemTooLarge
	}

	// last writer wins
	if elem, ok := c.items[key]; ok {
		c.removeElement(elem, EvictReplaced)
	}

	for c.eviction.Len() > 0 && (c.size+incoming > c.maxBytes || c.atEntryLimit()) {
		c.evictOldest()
	}

	now := c.now()
	res := NewResource(key, data, mimeType, now)
	entry := &memoryEntry{
		key:        key,
		res:        res,
		size:       incoming,
		created:    now,
		lastAccess: now,
	}

	c.items[key] = c.eviction.PushFront(entry)
	c.size += incoming
	c.stats.Size = c.size
	return res, nil
}

// Delete removes an entry and releases its handle.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem, EvictCleared)
	}
}

// Clear releases every handle and empties the cache.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for elem := c.eviction.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*memoryEntry)
		entry.res.Release()
		if c.onEvict != nil {
			c.onEvict(entry.key, EvictCleared)
		}
	}

	c.items = make(map[string]*list.Element)
	c.eviction.Init()
	c.size = 0
	c.stats.Size = 0
}

// Sweep removes every entry older than the TTL and returns how many were
// dropped.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl <= 0 {
		return 0
	}

	now := c.now()
	swept := 0
	elem := c.eviction.Back()
	for elem != nil {
		prev := elem.Prev()
		if c.expired(elem.Value.(*memoryEntry), now) {
			c.removeElement(elem, EvictExpired)
			swept++
		}
		elem = prev
	}
	return swept
}

// Size returns the current payload size in bytes.
func (c *MemoryCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Contains checks if a key exists without touching recency.
func (c *MemoryCache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// Keys returns keys ordered from most to least recently used.
func (c *MemoryCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for elem := c.eviction.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*memoryEntry).key)
	}
	return keys
}

// Stats returns cache statistics.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = c.size
	stats.ItemCount = len(c.items)
	if stats.Hits+stats.Misses > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.Hits+stats.Misses)
	}
	return stats
}

func (c *MemoryCache) atEntryLimit() bool {
	return c.maxEntries > 0 && c.eviction.Len() >= c.maxEntries
}

func (c *MemoryCache) expired(entry *memoryEntry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(entry.created) > c.ttl
}

// evictOldest removes the least recently used item (must be called with lock held).
func (c *MemoryCache) evictOldest() {
	if elem := c.eviction.Back(); elem != nil {
		c.removeElement(elem, EvictCapacity)
	}
}

// removeElement unlinks an entry and releases its handle (must be called with lock held).
func (c *MemoryCache) removeElement(elem *list.Element, reason EvictReason) {
	c.eviction.Remove(elem)
	entry := elem.Value.(*memoryEntry)
	delete(c.items, entry.key)
	c.size -= entry.size
	c.stats.Size = c.size
	entry.res.Release()

	switch reason {
	case EvictCapacity:
		c.stats.Evictions++
		c.stats.LastEvict = c.now()
	case EvictExpired:
		c.stats.Expirations++
	}

	if c.onEvict != nil {
		c.onEvict(entry.key, reason)
	}
}
