// Package cache provides the concurrent map shared by decode tasks.
package cache

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Map is a map guarded by a read-write mutex. The zero value is not usable;
// create maps with New.
type Map[K comparable, V any] struct {
	mu     sync.RWMutex
	m      map[K]V
	flight singleflight.Group
}

// New creates an empty map with room for capacity entries.
func New[K comparable, V any](capacity int) *Map[K, V] {
	return &Map[K, V]{m: make(map[K]V, capacity)}
}

// Load returns the value stored under k.
func (c *Map[K, V]) Load(k K) (V, bool) {
	c.mu.RLock()
	v, ok := c.m[k]
	c.mu.RUnlock()
	return v, ok
}

// Store sets the value under k.
func (c *Map[K, V]) Store(k K, v V) {
	c.mu.Lock()
	c.m[k] = v
	c.mu.Unlock()
}

// LoadOrStore returns the value under k if present. Otherwise it stores v
// and returns it. loaded reports whether the value was already present.
func (c *Map[K, V]) LoadOrStore(k K, v V) (actual V, loaded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.m[k]; ok {
		return old, true
	}
	c.m[k] = v
	return v, false
}

// LoadOrCompute returns the value under k, calling fn to create it when it
// is absent. Callers asking for the same key share one call of fn, which
// runs without holding the map lock. Errors are returned to every waiter
// and are not stored.
func (c *Map[K, V]) LoadOrCompute(k K, fn func() (V, error)) (V, error) {
	if v, ok := c.Load(k); ok {
		return v, nil
	}
	r, err, _ := c.flight.Do(fmt.Sprintf("%#v", k), func() (any, error) {
		if v, ok := c.Load(k); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return nil, err
		}
		v, _ = c.LoadOrStore(k, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	v, _ := r.(V)
	return v, nil
}

// Delete removes k.
func (c *Map[K, V]) Delete(k K) {
	c.mu.Lock()
	delete(c.m, k)
	c.mu.Unlock()
}

// LoadAndDelete removes k and returns its value.
func (c *Map[K, V]) LoadAndDelete(k K) (V, bool) {
	c.mu.Lock()
	v, ok := c.m[k]
	delete(c.m, k)
	c.mu.Unlock()
	return v, ok
}

// Len returns the number of entries.
func (c *Map[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// Range calls fn for every entry until fn returns false. The map is read
// locked during the walk; fn must not modify it.
func (c *Map[K, V]) Range(fn func(K, V) bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.m {
		if !fn(k, v) {
			return
		}
	}
}

// Snapshot returns a copy of the entries.
func (c *Map[K, V]) Snapshot() map[K]V {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[K]V, len(c.m))
	for k, v := range c.m {
		out[k] = v
	}
	return out
}
