// Package naming resolves router addresses (opaque uint64s) to
// human-readable debug labels for the admin HTTP surface and dashboard,
// cache-aside over whatever Resolver the caller supplies.
package naming

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Resolver looks a label up for addr the slow way — a registry lookup, a
// naming service call, whatever the embedding application uses to know
// which FSM an address belongs to. It returns ok=false when addr has no
// known label (a stopped or never-named FSM).
type Resolver func(addr uint64) (label string, ok bool)

// Labeler resolves addresses to labels through an LRU cache, avoiding a
// Resolver call on every repeated lookup of a hot address — the same
// cache-aside shape as the teacher's peer-enrichment cache.
type Labeler struct {
	resolve Resolver
	cache   *lru.Cache[uint64, string]
}

// New builds a Labeler with a cache of the given capacity, falling back to
// a 10000-entry cache (the teacher's default) if capacity is non-positive.
func New(resolve Resolver, capacity int) *Labeler {
	if capacity <= 0 {
		capacity = 10000
	}
	cache, _ := lru.New[uint64, string](capacity)
	return &Labeler{resolve: resolve, cache: cache}
}

// Label returns addr's human-readable name, falling back to its raw
// numeric form when Resolver reports no label.
func (l *Labeler) Label(addr uint64) string {
	if cached, ok := l.cache.Get(addr); ok {
		return cached
	}

	label, ok := l.resolve(addr)
	if !ok {
		return fmt.Sprintf("addr-%d", addr)
	}

	l.cache.Add(addr, label)
	return label
}

// Forget evicts addr's cached label, e.g. once the admin surface is told
// the FSM behind it has been reclaimed.
func (l *Labeler) Forget(addr uint64) {
	l.cache.Remove(addr)
}
