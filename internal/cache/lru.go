// Package cache provides a small generic LRU cache with per-entry TTL.
// The search handler uses it to serve repeated searches without rescanning
// the tree.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// LRU is a fixed-capacity LRU cache with TTL expiry. Safe for concurrent use.
type LRU[K comparable, V any] struct {
	mu        sync.Mutex
	capacity  int
	ttl       time.Duration
	items     map[K]*list.Element
	order     *list.List // front = most recently used
	done      chan struct{}
	closeOnce sync.Once
}

// NewLRU creates a cache holding at most capacity entries, each valid for
// ttl. A background sweep drops expired entries so the map does not grow
// with dead keys between reads.
func NewLRU[K comparable, V any](capacity int, ttl time.Duration) *LRU[K, V] {
	c := &LRU[K, V]{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[K]*list.Element),
		order:    list.New(),
		done:     make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Get returns the cached value for key if present and unexpired.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	en := el.Value.(*entry[K, V])
	if time.Now().After(en.expiresAt) {
		c.removeElement(el)
		return zero, false
	}
	c.order.MoveToFront(el)
	return en.value, true
}

// Put stores a value, evicting the least recently used entry when full.
func (c *LRU[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		en := el.Value.(*entry[K, V])
		en.value = value
		en.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		if back := c.order.Back(); back != nil {
			c.removeElement(back)
		}
	}

	el := c.order.PushFront(&entry[K, V]{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	})
	c.items[key] = el
}

// Invalidate removes a single key.
func (c *LRU[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Clear removes all entries.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*list.Element)
	c.order.Init()
}

// Len returns the number of live entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Close stops the background sweep goroutine.
func (c *LRU[K, V]) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *LRU[K, V]) removeElement(el *list.Element) {
	en := el.Value.(*entry[K, V])
	delete(c.items, en.key)
	c.order.Remove(el)
}

func (c *LRU[K, V]) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for el := c.order.Back(); el != nil; {
				prev := el.Prev()
				if now.After(el.Value.(*entry[K, V]).expiresAt) {
					c.removeElement(el)
				}
				el = prev
			}
			c.mu.Unlock()
		}
	}
}
