package diarize

import (
	"container/list"
	"sync"
	"time"
)

type labelEntry struct {
	labels       []int
	speakerCount int
	score        float64

	key      string
	storedAt time.Time
}

// labelCache is a fixed-capacity LRU with per-entry TTL. Lookups refresh
// recency; inserts past capacity evict the least recently used entry.
type labelCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List

	now func() time.Time
}

func newLabelCache(capacity int, ttl time.Duration) *labelCache {
	return &labelCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

func (c *labelCache) Get(key string) (*labelEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*labelEntry)
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.order.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry, true
}

func (c *labelCache) Set(key string, entry *labelEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry.key = key
	entry.storedAt = c.now()

	if el, ok := c.items[key]; ok {
		el.Value = entry
		c.order.MoveToFront(el)
		return
	}

	c.items[key] = c.order.PushFront(entry)
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*labelEntry).key)
	}
}

func (c *labelCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
