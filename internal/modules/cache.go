package modules

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// CachedSource memoizes another source. Concurrent fetches of the same path
// from many execution contexts share one underlying fetch. Failures are not
// cached.
type CachedSource struct {
	inner Source
	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]string
}

// NewCachedSource wraps inner.
func NewCachedSource(inner Source) *CachedSource {
	return &CachedSource{inner: inner, cache: make(map[string]string)}
}

func (c *CachedSource) Fetch(ctx context.Context, p string) (string, error) {
	c.mu.RLock()
	code, ok := c.cache[p]
	c.mu.RUnlock()
	if ok {
		return code, nil
	}

	v, err, _ := c.group.Do(p, func() (interface{}, error) {
		code, err := c.inner.Fetch(ctx, p)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.cache[p] = code
		c.mu.Unlock()
		return code, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Forget drops every cached module.
func (c *CachedSource) Forget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]string)
}

// Len returns the number of cached modules.
func (c *CachedSource) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
