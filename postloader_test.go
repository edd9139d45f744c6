package postloader

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/postloader/internal/testdb"
	"github.com/ammar0144/postloader/pkg/admin"
	"github.com/ammar0144/postloader/pkg/cache"
	"github.com/ammar0144/postloader/pkg/config"
	"github.com/ammar0144/postloader/pkg/loader"
)

func redisCacheConfig(t *testing.T) (config.CacheConfig, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := config.Default().Cache
	cfg.Backend = config.BackendRedis
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	cfg.Redis.Host = mr.Host()
	cfg.Redis.Port = port
	return cfg, mr
}

func TestNewCacheBackends(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		c, closeFn, err := NewCache(config.Default().Cache, nil)
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &cache.Memory{}, c)
	})

	t.Run("none", func(t *testing.T) {
		cfg := config.Default().Cache
		cfg.Backend = config.BackendNone
		c, closeFn, err := NewCache(cfg, nil)
		require.NoError(t, err)
		defer closeFn()
		assert.Equal(t, cache.Nop{}, c)
	})

	t.Run("redis", func(t *testing.T) {
		cfg, _ := redisCacheConfig(t)
		c, closeFn, err := NewCache(cfg, nil)
		require.NoError(t, err)
		defer closeFn()
		require.IsType(t, &cache.Breaker{}, c)

		require.NoError(t, c.Set(ctx, "ns", "k", []byte("v")))
		v, found, err := c.Get(ctx, "ns", "k")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("v"), v)
	})

	t.Run("redis disabled", func(t *testing.T) {
		cfg := config.Default().Cache
		cfg.Backend = config.BackendRedis
		cfg.Redis.Enabled = false
		c, _, err := NewCache(cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, cache.Nop{}, c)
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := config.Default().Cache
		cfg.Backend = "memcache"
		_, _, err := NewCache(cfg, nil)
		assert.Error(t, err)
	})
}

func TestLoaderOverRedis(t *testing.T) {
	ctx := context.Background()
	m := testdb.New(t)
	fixtures := testdb.NewFixtures(t, m)
	jan := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	p := fixtures.Post(nil, "first", jan)
	fixtures.File(nil, p.ID, "a.png", jan, true)

	cfg, mr := redisCacheConfig(t)
	c, closeFn, err := NewCache(cfg, nil)
	require.NoError(t, err)
	defer closeFn()

	l := NewLoader(m, c)
	require.NoError(t, l.SetLoadAssociation(loader.AssociationFiles, true))
	set, err := l.List(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
	require.Len(t, set.First().Files, 1)
	assert.NotEmpty(t, mr.Keys())

	fixtures.Post(nil, "second", jan.Add(time.Hour))
	set, err = l.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len(), "served from redis")

	n, err := admin.NewService(m, c).DeletePosts(ctx, []int64{p.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	set, err = l.List(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
	assert.Equal(t, "second", set.First().Shortname)
	assert.NotNil(t, set.First().Files)
	assert.Empty(t, set.First().Files)
}

func TestLoaderSurvivesRedisOutage(t *testing.T) {
	ctx := context.Background()
	m := testdb.New(t)
	testdb.NewFixtures(t, m).Post(nil, "p", time.Now())

	cfg, mr := redisCacheConfig(t)
	cfg.Redis.DialTimeout = 100 * time.Millisecond
	cfg.Redis.ReadTimeout = 100 * time.Millisecond
	c, closeFn, err := NewCache(cfg, nil)
	require.NoError(t, err)
	defer closeFn()
	mr.Close()

	for i := 0; i < 3; i++ {
		set, err := NewLoader(m, c).List(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, set.Len())
	}
}
