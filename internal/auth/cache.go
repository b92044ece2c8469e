package auth

import (
	"sync"
	"sync/atomic"
	"time"
)

// Cache is a TTL-based in-memory cache with stale-while-revalidate.
// Uses sync.Map for lock-free reads on the hot path.
type Cache struct {
	store sync.Map // map[string]*cacheEntry
	ttl   time.Duration
	now   func() time.Time
}

type cacheEntry struct {
	principal  *Principal
	expiresAt  time.Time
	refreshing atomic.Bool
}

// CacheResult holds the result of a cache lookup.
type CacheResult struct {
	Principal    *Principal
	Hit          bool
	NeedsRefresh bool
}

// NewCache creates a cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, now: time.Now}
}

// Get performs a non-blocking lookup. A stale entry is still returned;
// exactly one caller per expiry gets NeedsRefresh.
func (c *Cache) Get(token string) CacheResult {
	val, ok := c.store.Load(token)
	if !ok {
		return CacheResult{}
	}
	entry := val.(*cacheEntry)
	if c.now().Before(entry.expiresAt) {
		return CacheResult{Principal: entry.principal, Hit: true}
	}
	return CacheResult{
		Principal:    entry.principal,
		Hit:          true,
		NeedsRefresh: entry.refreshing.CompareAndSwap(false, true),
	}
}

// Set stores a principal with a fresh TTL.
func (c *Cache) Set(token string, p *Principal) {
	c.store.Store(token, &cacheEntry{principal: p, expiresAt: c.now().Add(c.ttl)})
}

// Delete removes an entry, used when a refresh finds the key revoked.
func (c *Cache) Delete(token string) {
	c.store.Delete(token)
}
