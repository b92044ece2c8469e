package mcp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLister struct {
	mu    sync.Mutex
	tools []ToolDefinition
	err   error
	calls int
}

func (s *stubLister) ListTools(context.Context) ([]ToolDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.tools, nil
}

func (s *stubLister) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestCatalog(lister Lister, cache SnapshotCache, clock *time.Time) *Catalog {
	c := NewCatalog(CatalogConfig{Lister: lister, Cache: cache, TTL: time.Minute})
	c.now = func() time.Time { return *clock }
	return c
}

func TestCatalog_CachesWithinTTL(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lister := &stubLister{tools: []ToolDefinition{{Name: "get_status"}}}
	c := newTestCatalog(lister, nil, &clock)

	assert.Len(t, c.Tools(context.Background()), 1)
	clock = clock.Add(30 * time.Second)
	assert.Len(t, c.Tools(context.Background()), 1)
	assert.Equal(t, 1, lister.Calls())

	clock = clock.Add(31 * time.Second)
	c.Tools(context.Background())
	assert.Equal(t, 2, lister.Calls(), "expired snapshot must be refetched")
}

func TestCatalog_UnavailableDegradesToEmpty(t *testing.T) {
	clock := time.Now()
	lister := &stubLister{err: ErrCatalogUnavailable}
	c := newTestCatalog(lister, nil, &clock)

	assert.Empty(t, c.Tools(context.Background()))
}

func TestCatalog_FailedRefreshServesStale(t *testing.T) {
	clock := time.Now()
	lister := &stubLister{tools: []ToolDefinition{{Name: "go_back"}}}
	c := newTestCatalog(lister, nil, &clock)
	c.Tools(context.Background())

	lister.err = errors.New("connection refused")
	clock = clock.Add(2 * time.Minute)

	tools := c.Tools(context.Background())
	require.Len(t, tools, 1)
	assert.Equal(t, "go_back", tools[0].Name)
}

func TestCatalog_NoListerMeansNoTools(t *testing.T) {
	c := NewCatalog(CatalogConfig{})
	assert.Nil(t, c.Tools(context.Background()))
}

type failingCache struct{}

func (failingCache) Get(context.Context) (*Snapshot, error) { return nil, errors.New("down") }
func (failingCache) Set(context.Context, *Snapshot) error  { return errors.New("down") }

func TestCatalog_CacheFailureStillFetches(t *testing.T) {
	clock := time.Now()
	lister := &stubLister{tools: []ToolDefinition{{Name: "list_tabs"}}}
	c := newTestCatalog(lister, failingCache{}, &clock)

	assert.Len(t, c.Tools(context.Background()), 1)
}

// stubRedis implements the two commands RedisCache uses.
type stubRedis struct {
	redis.Cmdable
	data map[string]string
	ttl  time.Duration
}

func (s *stubRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	v, ok := s.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (s *stubRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key)
	s.data[key] = string(value.([]byte))
	s.ttl = expiration
	cmd.SetVal("OK")
	return cmd
}

func TestRedisCache_RoundTrip(t *testing.T) {
	rdb := &stubRedis{data: map[string]string{}}
	cache := NewRedisCache(rdb, "", time.Minute)

	snap, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)

	fetched := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, cache.Set(context.Background(), &Snapshot{
		Tools:     []ToolDefinition{{Name: "navigate_browser", InputSchema: emptyObjectSchema()}},
		FetchedAt: fetched,
	}))
	assert.Equal(t, time.Minute, rdb.ttl)
	assert.Contains(t, rdb.data, DefaultRedisKey)

	snap, err = cache.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.True(t, snap.FetchedAt.Equal(fetched))
	assert.Equal(t, "navigate_browser", snap.Tools[0].Name)
}

func TestRedisCache_BackedCatalog(t *testing.T) {
	clock := time.Now()
	rdb := &stubRedis{data: map[string]string{}}
	lister := &stubLister{tools: []ToolDefinition{{Name: "get_status"}}}

	first := newTestCatalog(lister, NewRedisCache(rdb, "k", time.Minute), &clock)
	second := newTestCatalog(lister, NewRedisCache(rdb, "k", time.Minute), &clock)

	first.Tools(context.Background())
	second.Tools(context.Background())
	assert.Equal(t, 1, lister.Calls(), "second instance should reuse the shared snapshot")
}
