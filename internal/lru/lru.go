// Package lru implements the bounded, sampled-promotion cache the router
// uses for its per-clone address lookup cache (spec.md §4.1). It is a
// hand-rolled doubly-linked list plus map, not a wrapped third-party cache,
// because the spec's reuse-tail eviction and sampled promotion are not
// expressible through a generic cache library's public API (see
// DESIGN.md).
package lru

import "container/list"

// SizePolicy reports an approximate "size" for the cache that need not be
// the raw entry count — e.g. tracking byte weight instead. OnInsert and
// OnRemove are invoked with the affected value on every insert/overwrite/
// evict/remove; OnReset is invoked by Clear.
type SizePolicy[V any] interface {
	Size() int
	OnInsert(v V)
	OnRemove(v V)
	OnReset()
}

// CountTracker is the default SizePolicy: size is simply the entry count.
type CountTracker[V any] struct {
	count int
}

func (c *CountTracker[V]) Size() int   { return c.count }
func (c *CountTracker[V]) OnInsert(V)  { c.count++ }
func (c *CountTracker[V]) OnRemove(V)  { c.count-- }
func (c *CountTracker[V]) OnReset()    { c.count = 0 }

var _ SizePolicy[struct{}] = (*CountTracker[struct{}])(nil)

// entry is the payload stored at each list.Element, pairing the key (needed
// so eviction can find the map entry to delete from the tail record) with
// the cached value.
type entry[K comparable, V any] struct {
	key   K
	value V
}

// Cache is a bounded cache with sampled LRU promotion: Get/GetMut only
// move an entry to the front once every sampleMask+1 accesses, trading
// strict recency ordering for far fewer list operations on the hot path.
// Cache is not safe for concurrent use — callers needing per-goroutine
// caches (as the router does) must construct one Cache per goroutine.
type Cache[K comparable, V any] struct {
	capacity   int
	sampleMask uint64
	tick       uint64

	ll    *list.List // list of *entry[K,V], front = most recently used
	index map[K]*list.Element

	policy SizePolicy[V]
}

// New constructs a Cache with the given capacity and sample mask (a
// sampleMask of 7 promotes on roughly 1 in 8 accesses, matching the
// router's default per-clone cache). If policy is nil a *CountTracker is
// used.
func New[K comparable, V any](capacity int, sampleMask uint64, policy SizePolicy[V]) *Cache[K, V] {
	if policy == nil {
		policy = &CountTracker[V]{}
	}
	return &Cache[K, V]{
		capacity:   capacity,
		sampleMask: sampleMask,
		ll:         list.New(),
		index:      make(map[K]*list.Element, capacity),
		policy:     policy,
	}
}

// Len returns the number of entries currently cached.
func (c *Cache[K, V]) Len() int { return c.ll.Len() }

// Capacity returns the configured capacity.
func (c *Cache[K, V]) Capacity() int { return c.capacity }

// Size returns the size policy's current size (entry count by default).
func (c *Cache[K, V]) Size() int { return c.policy.Size() }

// Insert adds or overwrites the value for key. If key was already present
// it is promoted unconditionally (not sampled — an explicit write always
// counts as fresh) and its value replaced. If key is new and the cache is
// at capacity, the tail (least-recently-used) record is repurposed in
// place for the new key/value instead of allocating, and the evicted key
// is removed from the index.
func (c *Cache[K, V]) Insert(key K, value V) {
	if el, ok := c.index[key]; ok {
		old := el.Value.(*entry[K, V])
		c.policy.OnRemove(old.value)
		old.key = key
		old.value = value
		c.policy.OnInsert(value)
		c.ll.MoveToFront(el)
		return
	}

	if c.capacity > 0 && len(c.index) >= c.capacity {
		c.reuseTail(key, value)
		return
	}

	el := c.ll.PushFront(&entry[K, V]{key: key, value: value})
	c.index[key] = el
	c.policy.OnInsert(value)
}

// reuseTail evicts the current tail record, repurposing its list.Element
// for the new key/value rather than allocating a fresh node.
func (c *Cache[K, V]) reuseTail(key K, value V) {
	tail := c.ll.Back()
	old := tail.Value.(*entry[K, V])
	delete(c.index, old.key)
	c.policy.OnRemove(old.value)

	old.key = key
	old.value = value
	c.policy.OnInsert(value)

	c.ll.MoveToFront(tail)
	c.index[key] = tail
}

// maybePromote moves el to the front only when the sampled tick gates it,
// per spec.md's "approximate recency, not strict LRU" rationale.
func (c *Cache[K, V]) maybePromote(el *list.Element) {
	c.tick++
	if c.tick&c.sampleMask == 0 {
		c.ll.MoveToFront(el)
	}
}

// Get returns the cached value for key, promoting it on the sampled tick.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	el, ok := c.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.maybePromote(el)
	return el.Value.(*entry[K, V]).value, true
}

// GetMut returns a pointer to the cached value for in-place mutation,
// promoting it on the sampled tick. The returned pointer is only valid
// until the next Insert/Remove/Resize/Clear call on this cache.
func (c *Cache[K, V]) GetMut(key K) (*V, bool) {
	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	c.maybePromote(el)
	return &el.Value.(*entry[K, V]).value, true
}

// Remove deletes key from the cache if present.
func (c *Cache[K, V]) Remove(key K) {
	el, ok := c.index[key]
	if !ok {
		return
	}
	e := el.Value.(*entry[K, V])
	c.policy.OnRemove(e.value)
	c.ll.Remove(el)
	delete(c.index, key)
}

// Resize changes the cache's capacity. If shrinking below the current
// entry count, the least-recently-used entries are evicted from the tail
// until the count is within the new capacity.
func (c *Cache[K, V]) Resize(newCapacity int) {
	c.capacity = newCapacity
	if newCapacity <= 0 {
		return
	}
	for len(c.index) > newCapacity {
		tail := c.ll.Back()
		if tail == nil {
			break
		}
		e := tail.Value.(*entry[K, V])
		c.policy.OnRemove(e.value)
		c.ll.Remove(tail)
		delete(c.index, e.key)
	}
}

// Clear empties the cache and resets the size policy.
func (c *Cache[K, V]) Clear() {
	c.ll.Init()
	c.index = make(map[K]*list.Element, c.capacity)
	c.policy.OnReset()
}

// Iter calls fn for every cached key/value pair in most-recently-used-first
// order. fn must not mutate the cache.
func (c *Cache[K, V]) Iter(fn func(key K, value V)) {
	for el := c.ll.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry[K, V])
		fn(e.key, e.value)
	}
}
