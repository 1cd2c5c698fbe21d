package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache is a size-bounded cache whose entries expire after ttl of
// inactivity. Reads refresh both recency and expiry.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
	now     func() time.Time
	onEvict func(key string, value T)
}

type entry[T any] struct {
	key       string
	value     T
	expiresAt time.Time
}

// NewLRUCache creates a cache holding at most maxSize entries.
func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		now:     time.Now,
	}
}

// OnEvict registers a callback run, under the cache lock, for every entry
// dropped by expiry or capacity.
func (c *LRUCache[T]) OnEvict(fn func(key string, value T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, ok := c.lookup(key)
	if !ok {
		return zero, false
	}
	return elem.Value.(*entry[T]).value, true
}

// GetOrCreate returns the live entry for key, building and storing one with
// create when there is none. create runs with the cache lock held.
func (c *LRUCache[T]) GetOrCreate(key string, create func() T) T {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.lookup(key); ok {
		return elem.Value.(*entry[T]).value
	}
	v := create()
	c.insert(key, v)
	return v
}

func (c *LRUCache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry[T])
		e.value = value
		e.expiresAt = c.now().Add(c.ttl)
		c.lru.MoveToFront(elem)
		return
	}
	c.insert(key, value)
}

func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry[T])
		delete(c.items, e.key)
		c.lru.Remove(elem)
	}
}

// lookup finds a live entry, dropping it when expired. Caller holds mu.
func (c *LRUCache[T]) lookup(key string) (*list.Element, bool) {
	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	e := elem.Value.(*entry[T])
	now := c.now()
	if now.After(e.expiresAt) {
		c.evict(elem)
		return nil, false
	}
	e.expiresAt = now.Add(c.ttl)
	c.lru.MoveToFront(elem)
	return elem, true
}

func (c *LRUCache[T]) insert(key string, value T) {
	elem := c.lru.PushFront(&entry[T]{key: key, value: value, expiresAt: c.now().Add(c.ttl)})
	c.items[key] = elem
	for c.lru.Len() > c.maxSize {
		c.evict(c.lru.Back())
	}
}

func (c *LRUCache[T]) evict(elem *list.Element) {
	e := elem.Value.(*entry[T])
	delete(c.items, e.key)
	c.lru.Remove(elem)
	if c.onEvict != nil {
		c.onEvict(e.key, e.value)
	}
}

// CleanExpired removes all expired entries and returns how many it dropped.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		if now.After(elem.Value.(*entry[T]).expiresAt) {
			c.evict(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
