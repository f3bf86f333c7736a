package plan

import "sync"

// CacheKey identifies a value memoized in a step cache.
type CacheKey int

const (
	// CacheMatchingGroups holds the groups matching the filter of a
	// many-to-many Dispatchor step.
	CacheMatchingGroups CacheKey = iota
)

// Cache is a scratch space memoizing values computed from a step, which do
// not depend on the slice being evaluated.
type Cache struct {
	mu     sync.Mutex
	values map[CacheKey]interface{}
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{values: make(map[CacheKey]interface{})}
}

// Get returns the value for the key, if any.
func (c *Cache) Get(key CacheKey) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

// GetOrCompute returns the value for the key, computing and storing it
// with fn if missing. Errors are not cached.
func (c *Cache) GetOrCompute(key CacheKey, fn func() (interface{}, error)) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.values[key]; ok {
		return v, nil
	}

	v, err := fn()
	if err != nil {
		return nil, err
	}
	c.values[key] = v
	return v, nil
}
