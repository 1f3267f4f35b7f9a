package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	key            string
	value          V
	insertedAt     time.Time
	lastAccessedAt time.Time
}

type Stats struct {
	Size        int    `json:"size"`
	Capacity    int    `json:"capacity"`
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Evictions   uint64 `json:"evictions"`
	Expirations uint64 `json:"expirations"`
	KeyBytes    int    `json:"key_bytes"`
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// LRU is a size-bounded map with a fixed time-to-live per entry. Expired
// entries are dropped lazily on read and by Sweep. When a new key would
// exceed capacity the least recently used entry is evicted.
type LRU[V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	ll       *list.List
	items    map[string]*list.Element
	keyBytes int

	hits, misses, evictions, expirations uint64
}

func NewLRU[V any](capacity int, ttl time.Duration, opts ...Option) *LRU[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if capacity < 1 {
		capacity = 1
	}
	return &LRU[V]{
		capacity: capacity,
		ttl:      ttl,
		now:      o.now,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

func (c *LRU[V]) expired(e *entry[V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.insertedAt) >= c.ttl
}

func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}

	e := el.Value.(*entry[V])
	now := c.now()
	if c.expired(e, now) {
		c.removeElement(el)
		c.expirations++
		c.misses++
		return zero, false
	}

	e.lastAccessedAt = now
	c.ll.MoveToFront(el)
	c.hits++
	return e.value, true
}

// Peek reads an entry without touching recency or hit counters.
func (c *LRU[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok || c.expired(el.Value.(*entry[V]), c.now()) {
		return zero, false
	}
	return el.Value.(*entry[V]).value, true
}

// Put inserts or replaces key. It reports the key evicted to make room, if any.
func (c *LRU[V]) Put(key string, value V) (evicted string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, exists := c.items[key]; exists {
		e := el.Value.(*entry[V])
		e.value = value
		e.insertedAt = now
		e.lastAccessedAt = now
		c.ll.MoveToFront(el)
		return "", false
	}

	if c.ll.Len() >= c.capacity {
		if oldest := c.ll.Back(); oldest != nil {
			evicted = oldest.Value.(*entry[V]).key
			c.removeElement(oldest)
			c.evictions++
			ok = true
		}
	}

	el := c.ll.PushFront(&entry[V]{
		key:            key,
		value:          value,
		insertedAt:     now,
		lastAccessedAt: now,
	})
	c.items[key] = el
	c.keyBytes += len(key)
	return evicted, ok
}

func (c *LRU[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if ok {
		c.removeElement(el)
	}
	return ok
}

func (c *LRU[V]) removeElement(el *list.Element) {
	e := c.ll.Remove(el).(*entry[V])
	delete(c.items, e.key)
	c.keyBytes -= len(e.key)
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *LRU[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl <= 0 {
		return 0
	}
	now := c.now()
	removed := 0
	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		if c.expired(el.Value.(*entry[V]), now) {
			c.removeElement(el)
			removed++
		}
		el = prev
	}
	c.expirations += uint64(removed)
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (c *LRU[V]) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *LRU[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ll.Init()
	c.items = make(map[string]*list.Element, c.capacity)
	c.keyBytes = 0
}

func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Keys returns keys from most to least recently used.
func (c *LRU[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.ll.Len())
	for el := c.ll.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry[V]).key)
	}
	return keys
}

func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Size:        c.ll.Len(),
		Capacity:    c.capacity,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		KeyBytes:    c.keyBytes,
	}
}
