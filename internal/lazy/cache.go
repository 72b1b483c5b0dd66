package lazy

import (
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache is a get-or-create map. Concurrent misses for the same key run the
// constructor once and share its result; failed constructions are not stored.
type Cache[V any] struct {
	mu     sync.RWMutex
	values map[string]V
	group  singleflight.Group
}

// New creates an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{values: make(map[string]V)}
}

// Get returns the cached value for key, if any.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// GetOrCreate returns the value for key, calling create on a miss.
func (c *Cache[V]) GetOrCreate(key string, create func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		// a caller that lost the race may arrive after the value was stored
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := create()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.values[key] = v
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Set stores v under key, replacing any previous value.
func (c *Cache[V]) Set(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = v
}

// Len returns the number of cached values.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// Values returns the cached values ordered by key.
func (c *Cache[V]) Values() []V {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]V, len(keys))
	for i, k := range keys {
		out[i] = c.values[k]
	}
	return out
}
