// Package lookup provides a bounded read-through cache for identity
// lookups. Misses are resolved by a caller-supplied load function and the
// result is memoized, including the negative "does not exist" result, so
// repeated lookups for an unknown key do not hit the backing store.
package lookup

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LoadFunc resolves a cache miss. It returns the value and true when the
// key exists, the zero value and false when it does not, and a non-nil
// error only when the backing store could not answer at all.
type LoadFunc[K comparable, V any] func(key K) (V, bool, error)

type entry[V any] struct {
	value V
	found bool
}

// Cache is a fixed-capacity read-through cache. Entries beyond the capacity
// are evicted least-recently-used. All methods are safe for concurrent use.
type Cache[K comparable, V any] struct {
	entries *lru.Cache[K, entry[V]]
	load    LoadFunc[K, V]
}

// New creates a Cache holding at most size entries.
func New[K comparable, V any](size int, load LoadFunc[K, V]) (*Cache[K, V], error) {
	entries, err := lru.New[K, entry[V]](size)
	if err != nil {
		return nil, fmt.Errorf("lookup: %w", err)
	}
	return &Cache[K, V]{entries: entries, load: load}, nil
}

// Get returns the value for key, loading and memoizing it on a miss. The
// second return is false when the key is known not to exist. Load errors
// are returned to the caller and nothing is cached for the key.
func (c *Cache[K, V]) Get(key K) (V, bool, error) {
	if e, ok := c.entries.Get(key); ok {
		return e.value, e.found, nil
	}

	value, found, err := c.load(key)
	if err != nil {
		var zero V
		return zero, false, err
	}
	c.entries.Add(key, entry[V]{value: value, found: found})
	return value, found, nil
}

// Invalidate drops the entry for key, if cached.
func (c *Cache[K, V]) Invalidate(key K) {
	c.entries.Remove(key)
}

// Purge drops every cached entry.
func (c *Cache[K, V]) Purge() {
	c.entries.Purge()
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	return c.entries.Len()
}
