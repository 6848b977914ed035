package catalog

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Size   int    `json:"size"`
}

// CachedLookup decorates a Lookup with a bounded in-process cache. Only
// successful fetches are cached; misses and errors always reach the backend.
type CachedLookup struct {
	next   Lookup
	cache  *expirable.LRU[string, *Node]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCachedLookup wraps next with an LRU of at most size entries, each living
// for ttl (0 disables expiry).
func NewCachedLookup(next Lookup, size int, ttl time.Duration) *CachedLookup {
	if size <= 0 {
		size = 1024
	}
	return &CachedLookup{
		next:  next,
		cache: expirable.NewLRU[string, *Node](size, nil, ttl),
	}
}

// Fetch implements Lookup.
func (c *CachedLookup) Fetch(ctx context.Context, ref Ref) (*Node, error) {
	if node, ok := c.cache.Get(ref.Key()); ok {
		c.hits.Add(1)
		return node, nil
	}
	c.misses.Add(1)

	node, err := c.next.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	c.cache.Add(ref.Key(), node)
	return node, nil
}

// Invalidate drops cached entries for refs, or everything when none are given.
func (c *CachedLookup) Invalidate(refs ...Ref) {
	if len(refs) == 0 {
		c.cache.Purge()
		return
	}
	for _, ref := range refs {
		c.cache.Remove(ref.Key())
	}
}

// Stats returns the current counters.
func (c *CachedLookup) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.cache.Len(),
	}
}
