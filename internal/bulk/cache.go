// File: internal/bulk/cache.go
package bulk

import (
	"container/list"
	"sync"
	"time"

	"github.com/shoptalk-labs/shoptalk/internal/commerce"
)

// cacheEntry is one cached product lookup.
type cacheEntry struct {
	sku      string
	value    *commerce.Product
	storedAt time.Time
	hits     int
}

// ProductCache is a TTL+LRU bounded cache shared across a bulk batch so
// repeated SKUs do not trigger redundant backend lookups.
type ProductCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	ll       *list.List
	items    map[string]*list.Element
	now      func() time.Time

	hits   uint64
	misses uint64
}

// NewProductCache creates a cache with the given capacity and TTL.
func NewProductCache(capacity int, ttl time.Duration) *ProductCache {
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ProductCache{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Get returns the cached product for a SKU if present and fresh.
func (c *ProductCache) Get(sku string) (*commerce.Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[sku]
	if !ok {
		c.misses++
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.ll.Remove(el)
		delete(c.items, sku)
		c.misses++
		return nil, false
	}
	entry.hits++
	c.ll.MoveToFront(el)
	c.hits++
	return entry.value, true
}

// Put stores a lookup result, evicting the least-recently-used entry under
// capacity pressure.
func (c *ProductCache) Put(sku string, p *commerce.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[sku]; ok {
		entry := el.Value.(*cacheEntry)
		entry.value = p
		entry.storedAt = c.now()
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&cacheEntry{sku: sku, value: p, storedAt: c.now()})
	c.items[sku] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).sku)
		}
	}
}

// Stats reports hit/miss counters.
func (c *ProductCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len reports the number of live entries.
func (c *ProductCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
