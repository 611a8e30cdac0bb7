package cache

import (
	"container/list"
	"sync"

	"github.com/c360/opflow/errors"
)

type lruEntry[V any] struct {
	key   string
	value V
	size  int64
}

// LRU is a least recently used cache with object and byte budgets.
type LRU[V any] struct {
	mu         sync.RWMutex
	maxObjects int
	maxBytes   int64
	bytes      int64
	sizer      Sizer[V]
	items      map[string]*list.Element
	order      *list.List
	stats      *Statistics
	metrics    *cacheMetrics
	evictFn    EvictCallback[V]
}

// New creates an LRU cache. Without budgets it never evicts.
func New[V any](opts ...Option[V]) (*LRU[V], error) {
	o := applyOptions(opts...)
	if o.maxObjects < 0 || o.maxBytes < 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "New", "budgets must not be negative")
	}

	var metrics *cacheMetrics
	if o.metricsReg != nil {
		var err error
		metrics, err = newCacheMetrics(o.metricsReg, o.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "New", "metrics registration")
		}
	}

	return &LRU[V]{
		maxObjects: o.maxObjects,
		maxBytes:   o.maxBytes,
		sizer:      o.sizer,
		items:      make(map[string]*list.Element),
		order:      list.New(),
		stats:      &Statistics{},
		metrics:    metrics,
		evictFn:    o.evictCallback,
	}, nil
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.items[key]
	c.recordLookup(exists)
	if !exists {
		var zero V
		return zero, false
	}

	c.order.MoveToFront(element)
	return element.Value.(*lruEntry[V]).value, true
}

// Peek returns the value for key without touching recency or statistics.
func (c *LRU[V]) Peek(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if element, exists := c.items[key]; exists {
		return element.Value.(*lruEntry[V]).value, true
	}
	var zero V
	return zero, false
}

// Contains reports whether key is cached, without touching recency.
func (c *LRU[V]) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.items[key]
	return exists
}

// Set stores value under key as the most recently used entry and evicts
// until both budgets hold. It reports whether a new entry was created.
func (c *LRU[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	var size int64
	if c.sizer != nil {
		size = c.sizer(value)
	}

	c.mu.Lock()
	created := true
	if element, exists := c.items[key]; exists {
		entry := element.Value.(*lruEntry[V])
		c.bytes += size - entry.size
		entry.value = value
		entry.size = size
		c.order.MoveToFront(element)
		created = false
	} else {
		element := c.order.PushFront(&lruEntry[V]{key: key, value: value, size: size})
		c.items[key] = element
		c.bytes += size
	}

	c.stats.store(created)
	if c.metrics != nil {
		c.metrics.store(created)
	}
	evicted := c.evictUnsafe()
	c.updateSizeUnsafe()
	c.mu.Unlock()

	c.notify(evicted)
	return created, nil
}

// Delete removes key. It reports whether the key was cached.
func (c *LRU[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	element, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		return false, nil
	}
	entry := c.removeElementUnsafe(element)
	c.stats.deletes.Add(1)
	if c.metrics != nil {
		c.metrics.remove("delete")
	}
	c.updateSizeUnsafe()
	c.mu.Unlock()

	c.notify([]*lruEntry[V]{entry})
	return true, nil
}

// Clear removes every entry, calling the eviction callback for each, least
// recently used first.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	var evicted []*lruEntry[V]
	if c.evictFn != nil {
		evicted = make([]*lruEntry[V], 0, len(c.items))
		for element := c.order.Back(); element != nil; element = element.Prev() {
			evicted = append(evicted, element.Value.(*lruEntry[V]))
		}
	}
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.bytes = 0
	c.updateSizeUnsafe()
	c.mu.Unlock()

	c.notify(evicted)
}

// Len returns the number of entries.
func (c *LRU[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Bytes returns the estimated size of all entries.
func (c *LRU[V]) Bytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bytes
}

// Keys returns the keys, most recently used first.
func (c *LRU[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	for element := c.order.Front(); element != nil; element = element.Next() {
		keys = append(keys, element.Value.(*lruEntry[V]).key)
	}
	return keys
}

// Stats returns the cache statistics.
func (c *LRU[V]) Stats() *Statistics {
	return c.stats
}

// overBudgetUnsafe names the budget that is exceeded, the object budget
// first when both are.
func (c *LRU[V]) overBudgetUnsafe() (evictReason, bool) {
	switch {
	case c.maxObjects > 0 && len(c.items) > c.maxObjects:
		return evictObjects, true
	case c.maxBytes > 0 && c.bytes > c.maxBytes:
		return evictBytes, true
	}
	return "", false
}

// evictUnsafe drops least recently used entries until both budgets hold.
// Must be called with the lock held.
func (c *LRU[V]) evictUnsafe() []*lruEntry[V] {
	var evicted []*lruEntry[V]
	for {
		reason, over := c.overBudgetUnsafe()
		if !over {
			break
		}
		element := c.order.Back()
		if element == nil {
			break
		}
		evicted = append(evicted, c.removeElementUnsafe(element))
		c.stats.evict(reason)
		if c.metrics != nil {
			c.metrics.remove(string(reason))
		}
	}
	return evicted
}

// removeElementUnsafe removes an element from both the list and the map.
// Must be called with the lock held.
func (c *LRU[V]) removeElementUnsafe(element *list.Element) *lruEntry[V] {
	entry := element.Value.(*lruEntry[V])
	delete(c.items, entry.key)
	c.order.Remove(element)
	c.bytes -= entry.size
	return entry
}

func (c *LRU[V]) updateSizeUnsafe() {
	c.stats.resize(len(c.items), c.bytes)
	if c.metrics != nil {
		c.metrics.resize(len(c.items), c.bytes)
	}
}

func (c *LRU[V]) recordLookup(hit bool) {
	c.stats.lookup(hit)
	if c.metrics != nil {
		c.metrics.lookup(hit)
	}
}

// notify runs the eviction callback. Must be called without the lock.
func (c *LRU[V]) notify(evicted []*lruEntry[V]) {
	if c.evictFn == nil {
		return
	}
	for _, entry := range evicted {
		c.evictFn(entry.key, entry.value)
	}
}
