package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache is a size-bounded cache with TTL expiry.
type LRUCache[K comparable, T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[K]*list.Element
	lru     *list.List
	now     func() time.Time

	// gens holds the stamp of each key's latest invalidation. Stamps come
	// from clock and never repeat. Keys pruned from gens report floor, the
	// highest pruned stamp, so a generation read before the prune can only
	// match again if nothing was invalidated since.
	gens  map[K]uint64
	clock uint64
	floor uint64
}

type cacheItem[K comparable, T any] struct {
	key       K
	data      T
	expiresAt time.Time
}

func NewLRUCache[K comparable, T any](maxSize int, ttl time.Duration) *LRUCache[K, T] {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &LRUCache[K, T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[K]*list.Element),
		lru:     list.New(),
		gens:    make(map[K]uint64),
		now:     time.Now,
	}
}

func (c *LRUCache[K, T]) Get(key K) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, exists := c.items[key]
	if !exists {
		return zero, false
	}

	item := elem.Value.(*cacheItem[K, T])
	if c.now().After(item.expiresAt) {
		c.removeElement(elem)
		return zero, false
	}

	c.lru.MoveToFront(elem)
	return item.data, true
}

func (c *LRUCache[K, T]) Set(key K, data T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, data)
}

func (c *LRUCache[K, T]) Generation(key K) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation(key)
}

func (c *LRUCache[K, T]) generation(key K) uint64 {
	if g, ok := c.gens[key]; ok {
		return g
	}
	return c.floor
}

func (c *LRUCache[K, T]) SetIfGeneration(key K, gen uint64, data T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation(key) != gen {
		return false
	}
	c.set(key, data)
	return true
}

// Invalidate drops the entry and bumps the key's generation.
func (c *LRUCache[K, T]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clock++
	c.gens[key] = c.clock
	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
	}
}

func (c *LRUCache[K, T]) set(key K, data T) {
	item := &cacheItem[K, T]{
		key:       key,
		data:      data,
		expiresAt: c.now().Add(c.ttl),
	}

	if elem, exists := c.items[key]; exists {
		elem.Value = item
		c.lru.MoveToFront(elem)
		return
	}

	elem := c.lru.PushFront(item)
	c.items[key] = elem

	if c.lru.Len() > c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
}

func (c *LRUCache[K, T]) removeElement(elem *list.Element) {
	item := elem.Value.(*cacheItem[K, T])
	delete(c.items, item.key)
	c.lru.Remove(elem)
}

// CleanExpired removes all expired entries and returns how many it removed.
// Generations of keys no longer cached are folded into the floor.
func (c *LRUCache[K, T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var toRemove []*list.Element
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		if now.After(elem.Value.(*cacheItem[K, T]).expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		c.removeElement(elem)
	}
	for key, g := range c.gens {
		if _, cached := c.items[key]; cached {
			continue
		}
		c.floor = max(c.floor, g)
		delete(c.gens, key)
	}
	return len(toRemove)
}

func (c *LRUCache[K, T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

var _ Cache[string, int] = (*LRUCache[string, int])(nil)
