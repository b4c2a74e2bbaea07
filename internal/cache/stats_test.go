package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Total    int `json:"total"`
	Progress int `json:"progress"`
}

func setupTestCache(t *testing.T) (*miniredis.Miniredis, *StatsCache) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, New(client, 30*time.Second)
}

func TestStatsCache_Miss(t *testing.T) {
	_, c := setupTestCache(t)

	var got sample
	gen, ok, err := c.Get(context.Background(), "batch", "b1", &got)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, gen)
}

func TestStatsCache_SetGet(t *testing.T) {
	_, c := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, 0, "batch", "b1", sample{Total: 5, Progress: 40}))

	var got sample
	_, ok, err := c.Get(ctx, "batch", "b1", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, sample{Total: 5, Progress: 40}, got)
}

func TestStatsCache_InvalidateHidesOldEntries(t *testing.T) {
	_, c := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, 0, "rack", "r1", sample{Total: 1}))
	require.NoError(t, c.Invalidate(ctx))

	var got sample
	gen, ok, err := c.Get(ctx, "rack", "r1", &got)
	require.NoError(t, err)
	assert.False(t, ok, "entry from an older generation must miss")
	assert.Equal(t, int64(1), gen)

	require.NoError(t, c.Set(ctx, gen, "rack", "r1", sample{Total: 2}))
	_, ok, err = c.Get(ctx, "rack", "r1", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, got.Total)
}

func TestStatsCache_SetAfterInvalidateIsUnreachable(t *testing.T) {
	_, c := setupTestCache(t)
	ctx := context.Background()

	var got sample
	gen, ok, err := c.Get(ctx, "batch", "b1", &got)
	require.NoError(t, err)
	require.False(t, ok)

	// A mutation commits while the value for gen is being computed.
	require.NoError(t, c.Invalidate(ctx))
	require.NoError(t, c.Set(ctx, gen, "batch", "b1", sample{Total: 1}))

	_, ok, err = c.Get(ctx, "batch", "b1", &got)
	require.NoError(t, err)
	assert.False(t, ok, "a value computed before the invalidate must not be served")
}

func TestStatsCache_TTL(t *testing.T) {
	mr, c := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, 0, "cluster", "c1", sample{Total: 3}))
	mr.FastForward(31 * time.Second)

	var got sample
	_, ok, err := c.Get(ctx, "cluster", "c1", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := Dial(context.Background(), mr.Addr(), 0)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, time.Minute, c.ttl)
}

func TestDial_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := Dial(context.Background(), addr, 0)
	assert.Error(t, err)
}
