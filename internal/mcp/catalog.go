package mcp

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultCatalogTTL is how long a fetched catalog is served before refetching.
const DefaultCatalogTTL = 60 * time.Second

// Lister fetches the remote tool catalog.
type Lister interface {
	ListTools(ctx context.Context) ([]ToolDefinition, error)
}

// Catalog serves the tool catalog with an explicit TTL check-and-refresh.
// It is owned by the chat handler rather than held in package state.
type Catalog struct {
	lister Lister
	cache  SnapshotCache
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// CatalogConfig configures a Catalog.
type CatalogConfig struct {
	Lister Lister // nil means no MCP server is configured
	Cache  SnapshotCache
	TTL    time.Duration
	Logger *zap.Logger
}

// NewCatalog creates a Catalog. A nil cache uses a MemoryCache.
func NewCatalog(cfg CatalogConfig) *Catalog {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryCache()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		lister: cfg.Lister,
		cache:  cache,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// Tools returns the current catalog. It never fails: a fresh snapshot is
// served from cache, an expired or missing one is refetched synchronously,
// and a failed refetch falls back to the stale snapshot or to no tools.
func (c *Catalog) Tools(ctx context.Context) []ToolDefinition {
	if c.lister == nil {
		return nil
	}

	snap, err := c.cache.Get(ctx)
	if err != nil {
		c.logger.Warn("catalog cache read failed", zap.Error(err))
		snap = nil
	}
	if snap != nil && c.now().Sub(snap.FetchedAt) < c.ttl {
		return snap.Tools
	}

	tools, err := c.lister.ListTools(ctx)
	if err != nil {
		if snap != nil {
			c.logger.Warn("catalog refresh failed, serving stale snapshot",
				zap.Time("fetched_at", snap.FetchedAt),
				zap.Error(err),
			)
			return snap.Tools
		}
		c.logger.Warn("catalog unavailable, continuing without tools", zap.Error(err))
		return nil
	}

	fresh := &Snapshot{Tools: tools, FetchedAt: c.now()}
	if err := c.cache.Set(ctx, fresh); err != nil {
		c.logger.Warn("catalog cache write failed", zap.Error(err))
	}
	c.logger.Debug("catalog refreshed", zap.Int("tool_count", len(tools)))
	return tools
}
