package redis

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, mutate ...func(*Config)) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Host = mr.Host()
	cfg.Port = port
	for _, fn := range mutate {
		fn(cfg)
	}

	m, err := NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, mr
}

func TestManagerGetSet(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	require.NoError(t, m.Ping(ctx))

	_, found, err := m.Get(ctx, "posts", "k1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, m.Set(ctx, "posts", "k1", []byte("payload")))
	value, found, err := m.Get(ctx, "posts", "k1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("payload"), value)

	snap := m.GetMetrics()
	assert.Equal(t, uint64(1), snap.CacheHits)
	assert.Equal(t, uint64(1), snap.CacheMisses)
	assert.Equal(t, uint64(1), snap.SetOperations)
}

func TestManagerGetManyReturnsOnlyPresentKeys(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	require.NoError(t, m.Set(ctx, "posts", "a", []byte("1")))
	require.NoError(t, m.Set(ctx, "posts", "c", []byte("3")))

	got, err := m.GetMany(ctx, "posts", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a": []byte("1"), "c": []byte("3")}, got)

	got, err = m.GetMany(ctx, "posts", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestManagerFlushNamespace(t *testing.T) {
	ctx := context.Background()
	m, mr := newTestManager(t)

	require.NoError(t, m.Set(ctx, "posts", "a", []byte("1")))
	require.NoError(t, m.Set(ctx, "posts", "b", []byte("2")))
	require.NoError(t, m.Set(ctx, "authors", "a", []byte("x")))

	before, err := mr.Get("postloader:{posts}:gen")
	require.NoError(t, err)

	require.NoError(t, m.FlushNamespace(ctx, "posts"))

	after, err := mr.Get("postloader:{posts}:gen")
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	got, err := m.GetMany(ctx, "posts", []string{"a", "b"})
	require.NoError(t, err)
	assert.Empty(t, got)

	value, found, err := m.Get(ctx, "authors", "a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("x"), value)

	// stale generation purged, counters and the other namespace kept
	for _, key := range mr.Keys() {
		assert.False(t, strings.HasPrefix(key, "postloader:{posts}:"+before+":"), key)
	}
	assert.Equal(t, uint64(2), m.GetMetrics().PurgedKeys)

	require.NoError(t, m.Set(ctx, "posts", "a", []byte("new")))
	value, found, err = m.Get(ctx, "posts", "a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("new"), value)
}

func TestManagerFlushWithoutPurgeKeepsKeysUnreachable(t *testing.T) {
	ctx := context.Background()
	m, mr := newTestManager(t, func(c *Config) { c.Invalidation.PurgeStale = false })

	require.NoError(t, m.Set(ctx, "posts", "a", []byte("1")))
	require.NoError(t, m.FlushNamespace(ctx, "posts"))

	_, found, err := m.Get(ctx, "posts", "a")
	require.NoError(t, err)
	assert.False(t, found)
	// generation counter plus the orphaned entry
	assert.Len(t, mr.Keys(), 2)
}

func TestManagerLostGenerationDoesNotReviveEntries(t *testing.T) {
	ctx := context.Background()
	m, mr := newTestManager(t, func(c *Config) { c.Invalidation.PurgeStale = false })

	require.NoError(t, m.Set(ctx, "posts", "a", []byte("1")))
	mr.Del("postloader:{posts}:gen")

	_, found, err := m.Get(ctx, "posts", "a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestManagerCompressesLargeValues(t *testing.T) {
	ctx := context.Background()
	m, mr := newTestManager(t, func(c *Config) { c.LargeValue.CompressThreshold = 64 })

	large := bytes.Repeat([]byte("post body "), 200)
	require.NoError(t, m.Set(ctx, "posts", "big", large))
	require.NoError(t, m.Set(ctx, "posts", "small", []byte("tiny")))

	gen, err := mr.Get("postloader:{posts}:gen")
	require.NoError(t, err)
	stored, err := mr.Get("postloader:{posts}:" + gen + ":big")
	require.NoError(t, err)
	assert.Equal(t, byte('z'), stored[0])
	assert.Less(t, len(stored), len(large))

	stored, err = mr.Get("postloader:{posts}:" + gen + ":small")
	require.NoError(t, err)
	assert.Equal(t, "rtiny", stored)

	value, found, err := m.Get(ctx, "posts", "big")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, large, value)

	assert.Equal(t, uint64(1), m.GetMetrics().CompressedWrites)
	assert.Greater(t, m.GetMetrics().CompressionBytesSaved, uint64(0))
}

func TestManagerRejectsOversizedValues(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, func(c *Config) { c.LargeValue.MaxValueSize = 8 })

	err := m.Set(ctx, "posts", "a", []byte("0123456789"))
	assert.True(t, IsValueTooLarge(err))
	assert.Equal(t, uint64(1), m.GetMetrics().OversizedRejected)
}

func TestManagerCorruptValues(t *testing.T) {
	ctx := context.Background()
	m, mr := newTestManager(t)

	require.NoError(t, m.Set(ctx, "posts", "good", []byte("1")))
	gen, err := mr.Get("postloader:{posts}:gen")
	require.NoError(t, err)
	require.NoError(t, mr.Set("postloader:{posts}:"+gen+":bad", "?garbage"))

	_, _, err = m.Get(ctx, "posts", "bad")
	assert.ErrorIs(t, err, ErrCorruptValue)

	got, err := m.GetMany(ctx, "posts", []string{"good", "bad"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"good": []byte("1")}, got)
}

func TestManagerDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Enabled = false
	m, err := NewManager(cfg)
	require.NoError(t, err)

	assert.NoError(t, m.Ping(ctx))
	_, _, err = m.Get(ctx, "posts", "a")
	assert.True(t, IsCacheDisabled(err))
	assert.True(t, IsCacheDisabled(m.FlushNamespace(ctx, "posts")))
}

func TestManagerInvalidNamespace(t *testing.T) {
	m, _ := newTestManager(t)
	assert.ErrorIs(t, m.Set(context.Background(), "", "a", nil), ErrInvalidNamespace)
}

func TestManagerConnectionFailure(t *testing.T) {
	ctx := context.Background()
	m, mr := newTestManager(t)
	mr.Close()

	assert.True(t, IsConnectionFailed(m.Ping(ctx)))
	_, _, err := m.Get(ctx, "posts", "a")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Host = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.DefaultTTL = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Cluster = ClusterConfig{Enabled: true, Addresses: []string{"a:1", "b:2"}}
	cfg.Host = ""
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.IsClusterMode())

	cfg = DefaultConfig()
	cfg.Enabled = false
	cfg.Host = ""
	assert.NoError(t, cfg.Validate())
}
