// File: internal/registry/lru.go
package registry

import "container/list"

// lruCache is a small, non-thread-safe LRU used for compiled tools. The
// registry serializes access under its own lock.
type lruCache[V any] struct {
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type lruEntry[V any] struct {
	key   string
	value V
}

func newLRUCache[V any](capacity int) *lruCache[V] {
	if capacity <= 0 {
		capacity = 128
	}
	return &lruCache[V]{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		return el.Value.(*lruEntry[V]).value, true
	}
	var zero V
	return zero, false
}

func (c *lruCache[V]) put(key string, value V) {
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*lruEntry[V]).value = value
		return
	}
	el := c.ll.PushFront(&lruEntry[V]{key: key, value: value})
	c.items[key] = el
	if c.ll.Len() > c.capacity {
		c.evictOldest()
	}
}

func (c *lruCache[V]) remove(key string) {
	if el, ok := c.items[key]; ok {
		c.ll.Remove(el)
		delete(c.items, key)
	}
}

func (c *lruCache[V]) evictOldest() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	entry := el.Value.(*lruEntry[V])
	c.ll.Remove(el)
	delete(c.items, entry.key)
}

func (c *lruCache[V]) len() int { return c.ll.Len() }
