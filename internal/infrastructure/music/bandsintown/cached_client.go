package bandsintown

import (
	"context"
	"time"

	"github.com/liverty-music/actcache/internal/entity"
	"github.com/liverty-music/actcache/pkg/cache"
)

// CachedClient fronts a Client with a short-TTL in-memory cache keyed by
// page URL, so an inline FetchMany request and a concurrently-draining
// Fetch Queue or Sweeper cycle touching the same act within the TTL window
// share a single page fetch instead of downloading and re-parsing it twice.
type CachedClient struct {
	inner *client
	cache *cache.MemoryCache
}

// NewCachedClient wraps inner with a cache.MemoryCache of the given TTL.
func NewCachedClient(inner *client, ttl time.Duration) *CachedClient {
	return &CachedClient{inner: inner, cache: cache.NewMemoryCache(ttl)}
}

// FetchEvents returns the cached result for url if present and unexpired,
// otherwise delegates to the wrapped client and caches a successful result.
// A silent, suppressed failure (nil, nil) is never cached, so the next
// caller gets a fresh attempt.
func (c *CachedClient) FetchEvents(ctx context.Context, url string, silent bool) ([]entity.RawEvent, error) {
	if v := c.cache.Get(url); v != nil {
		events, _ := v.([]entity.RawEvent)
		return events, nil
	}

	events, err := c.inner.FetchEvents(ctx, url, silent)
	if err != nil {
		return nil, err
	}
	if events != nil {
		c.cache.Set(url, events)
	}
	return events, nil
}

// Close releases the wrapped client and stops the cache's janitor goroutine.
func (c *CachedClient) Close() error {
	_ = c.cache.Close()
	return c.inner.Close()
}

var _ entity.EventFetcher = (*CachedClient)(nil)
