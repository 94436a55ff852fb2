package download

import "sync"

// Dimensions is a resolved (width, height) pair.
type Dimensions struct {
	Width  int
	Height int
}

// DimensionCache maps a device model identifier to its last-known output
// image dimensions, avoiding re-deriving dimensions on every download.
// Entries are never evicted; the key space is bounded by the distinct
// models ever connected in a session. The lock is only held around map
// access, never across the decode step.
type DimensionCache struct {
	mu   sync.Mutex
	dims map[string]Dimensions
}

// NewDimensionCache creates an empty cache.
func NewDimensionCache() *DimensionCache {
	return &DimensionCache{dims: make(map[string]Dimensions)}
}

// Lookup returns the cached dimensions for a model, if any.
func (c *DimensionCache) Lookup(model string) (Dimensions, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.dims[model]
	return d, ok
}

// Store records dimensions for a model, overwriting unconditionally.
func (c *DimensionCache) Store(model string, d Dimensions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dims[model] = d
}
