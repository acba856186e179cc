package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseCache(t *testing.T, c Cache) {
	ctx := context.Background()

	t.Run("Set and Get", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "device:d1", "v1", time.Minute))
		v, ok := c.Get(ctx, "device:d1")
		require.True(t, ok)
		assert.Equal(t, "v1", v)
	})

	t.Run("SetNX only writes once", func(t *testing.T) {
		ok, err := c.SetNX(ctx, "idem:k", "first", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = c.SetNX(ctx, "idem:k", "second", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		v, found := c.Get(ctx, "idem:k")
		require.True(t, found)
		assert.Equal(t, "first", v)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, c.Delete(ctx, "device:d1"))
		_, ok := c.Get(ctx, "device:d1")
		assert.False(t, ok)
	})
}

func TestGoCache(t *testing.T) {
	c := NewGoCache(LocalConfig{DefaultExpiration: 5 * time.Minute, CleanupInterval: 10 * time.Minute})
	defer c.Close()
	exerciseCache(t, c)
}

func TestLRUCache(t *testing.T) {
	c := NewLRUCache(LocalConfig{MaxSize: 100, DefaultExpiration: 5 * time.Minute})
	defer c.Close()
	exerciseCache(t, c)
}

func TestLRUCacheEvictsOldest(t *testing.T) {
	c := NewLRUCache(LocalConfig{MaxSize: 2, DefaultExpiration: time.Minute})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1, 0))
	require.NoError(t, c.Set(ctx, "b", 2, 0))
	require.NoError(t, c.Set(ctx, "c", 3, 0))

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	v, ok := c.Get(ctx, "c")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.Type = "redis"
	cfg.Redis.Addr = mr.Addr()

	c, err := NewCache(cfg)
	require.NoError(t, err)
	defer c.Close()
	exerciseCache(t, c)
}

func TestRedisCacheNumbersComeBackAsFloat(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewRedisCache(RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "uid", int64(42), time.Minute))
	v, ok := c.Get(ctx, "uid")
	require.True(t, ok)
	assert.Equal(t, float64(42), v)
}

func TestNewCacheRejectsUnknownType(t *testing.T) {
	_, err := NewCache(Config{Type: "memcached"})
	assert.Error(t, err)
}
