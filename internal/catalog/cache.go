package catalog

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// CachedLookup keeps recently used products in a bounded, expiring cache and
// collapses concurrent misses for the same id into one downstream call.
type CachedLookup struct {
	next  Lookup
	cache *expirable.LRU[string, Product]
	sf    singleflight.Group
}

func NewCachedLookup(next Lookup, size int, ttl time.Duration) *CachedLookup {
	return &CachedLookup{
		next:  next,
		cache: expirable.NewLRU[string, Product](size, nil, ttl),
	}
}

func (c *CachedLookup) GetProduct(ctx context.Context, id string) (*Product, error) {
	if p, ok := c.cache.Get(id); ok {
		return &p, nil
	}

	v, err, _ := c.sf.Do(id, func() (interface{}, error) {
		p, err := c.next.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		c.cache.Add(id, *p)
		return *p, nil
	})
	if err != nil {
		return nil, err
	}
	p := v.(Product)
	return &p, nil
}

// Invalidate drops id so the next lookup reads through.
func (c *CachedLookup) Invalidate(id string) {
	c.cache.Remove(id)
}
