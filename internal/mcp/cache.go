package mcp

import (
	"context"
	"sync"
	"time"
)

// Snapshot is a fetched catalog and the time it was fetched.
type Snapshot struct {
	Tools     []ToolDefinition `json:"tools"`
	FetchedAt time.Time        `json:"fetched_at"`
}

// SnapshotCache stores the latest catalog snapshot. Freshness is decided
// by the Catalog, not by the cache.
type SnapshotCache interface {
	// Get returns the stored snapshot, or nil if there is none.
	Get(ctx context.Context) (*Snapshot, error)
	Set(ctx context.Context, snap *Snapshot) error
}

// MemoryCache is a process-local SnapshotCache.
type MemoryCache struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (m *MemoryCache) Get(_ context.Context) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap, nil
}

func (m *MemoryCache) Set(_ context.Context, snap *Snapshot) error {
	m.mu.Lock()
	m.snap = snap
	m.mu.Unlock()
	return nil
}
