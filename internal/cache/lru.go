package cache

import (
	"container/list"
	"sync"
	"time"
)

// EvictFunc is called with every entry that leaves the cache, whether it
// expired, was pushed out by capacity, replaced or deleted. It runs without
// the cache lock held.
type EvictFunc[T any] func(key string, data T)

// LRUCache is an LRU cache with TTL and size-based eviction.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
	onEvict EvictFunc[T]
	now     func() time.Time
}

type cacheItem[T any] struct {
	key       string
	data      T
	expiresAt time.Time
}

type evicted[T any] struct {
	key  string
	data T
}

// Option configures an LRUCache.
type Option[T any] func(*LRUCache[T])

// WithEvictCallback registers fn for entries leaving the cache.
func WithEvictCallback[T any](fn EvictFunc[T]) Option[T] {
	return func(c *LRUCache[T]) { c.onEvict = fn }
}

// WithClock replaces time.Now, for tests.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(c *LRUCache[T]) { c.now = now }
}

// NewLRUCache creates a new LRU cache with TTL
func NewLRUCache[T any](maxSize int, ttl time.Duration, opts ...Option[T]) *LRUCache[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	c := &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a live value and marks it as recently used.
func (c *LRUCache[T]) Get(key string) (T, bool) {
	var zero T
	c.mu.Lock()
	elem, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		return zero, false
	}
	item := elem.Value.(*cacheItem[T])
	if c.now().After(item.expiresAt) {
		gone := c.removeElement(elem)
		c.mu.Unlock()
		c.notify(gone)
		return zero, false
	}
	c.lru.MoveToFront(elem)
	c.mu.Unlock()
	return item.data, true
}

// Set stores a value, evicting the least recently used entry when full.
func (c *LRUCache[T]) Set(key string, data T) {
	c.mu.Lock()
	item := &cacheItem[T]{key: key, data: data, expiresAt: c.now().Add(c.ttl)}

	var gone []evicted[T]
	if elem, exists := c.items[key]; exists {
		old := elem.Value.(*cacheItem[T])
		gone = append(gone, evicted[T]{old.key, old.data})
		elem.Value = item
		c.lru.MoveToFront(elem)
	} else {
		c.items[key] = c.lru.PushFront(item)
		if c.lru.Len() > c.maxSize {
			if oldest := c.lru.Back(); oldest != nil {
				gone = append(gone, c.removeElement(oldest)...)
			}
		}
	}
	c.mu.Unlock()
	c.notify(gone)
}

// GetOrCreate returns the live value for key or stores the one built by
// create. create runs under the cache lock and must not call back into the
// cache.
func (c *LRUCache[T]) GetOrCreate(key string, create func() T) T {
	c.mu.Lock()
	var gone []evicted[T]
	if elem, exists := c.items[key]; exists {
		item := elem.Value.(*cacheItem[T])
		if !c.now().After(item.expiresAt) {
			item.expiresAt = c.now().Add(c.ttl)
			c.lru.MoveToFront(elem)
			c.mu.Unlock()
			return item.data
		}
		gone = c.removeElement(elem)
	}
	data := create()
	c.items[key] = c.lru.PushFront(&cacheItem[T]{key: key, data: data, expiresAt: c.now().Add(c.ttl)})
	if c.lru.Len() > c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			gone = append(gone, c.removeElement(oldest)...)
		}
	}
	c.mu.Unlock()
	c.notify(gone)
	return data
}

// Delete removes a key from the cache
func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	var gone []evicted[T]
	if elem, exists := c.items[key]; exists {
		gone = c.removeElement(elem)
	}
	c.mu.Unlock()
	c.notify(gone)
}

func (c *LRUCache[T]) removeElement(elem *list.Element) []evicted[T] {
	item := elem.Value.(*cacheItem[T])
	delete(c.items, item.key)
	c.lru.Remove(elem)
	return []evicted[T]{{item.key, item.data}}
}

func (c *LRUCache[T]) notify(gone []evicted[T]) {
	if c.onEvict == nil {
		return
	}
	for _, e := range gone {
		c.onEvict(e.key, e.data)
	}
}

// CleanExpired removes all expired entries and returns count of removed items
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	now := c.now()
	var gone []evicted[T]
	for elem := c.lru.Front(); elem != nil; {
		next := elem.Next()
		if now.After(elem.Value.(*cacheItem[T]).expiresAt) {
			gone = append(gone, c.removeElement(elem)...)
		}
		elem = next
	}
	c.mu.Unlock()
	c.notify(gone)
	return len(gone)
}

// Purge empties the cache, notifying every entry.
func (c *LRUCache[T]) Purge() {
	c.mu.Lock()
	var gone []evicted[T]
	for elem := c.lru.Front(); elem != nil; {
		next := elem.Next()
		gone = append(gone, c.removeElement(elem)...)
		elem = next
	}
	c.mu.Unlock()
	c.notify(gone)
}

// Size returns the current number of items in the cache
func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
