package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemory(t *testing.T) *Memory {
	t.Helper()
	m, err := NewMemory(DefaultMemoryConfig())
	require.NoError(t, err)
	return m
}

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	m := newMemory(t)

	_, found, err := m.Get(ctx, "posts", "a")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, m.Set(ctx, "posts", "a", []byte("1")))
	value, found, err := m.Get(ctx, "posts", "a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("1"), value)

	// namespaces are isolated
	_, found, err = m.Get(ctx, "other", "a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryGetManyReturnsOnlyPresentKeys(t *testing.T) {
	ctx := context.Background()
	m := newMemory(t)
	require.NoError(t, m.Set(ctx, "posts", "a", []byte("1")))
	require.NoError(t, m.Set(ctx, "posts", "c", []byte("3")))

	got, err := m.GetMany(ctx, "posts", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a": []byte("1"), "c": []byte("3")}, got)
}

func TestMemoryFlushNamespace(t *testing.T) {
	ctx := context.Background()
	m := newMemory(t)
	require.NoError(t, m.Set(ctx, "posts", "a", []byte("1")))
	require.NoError(t, m.Set(ctx, "other", "a", []byte("2")))

	require.NoError(t, m.FlushNamespace(ctx, "posts"))

	_, found, err := m.Get(ctx, "posts", "a")
	require.NoError(t, err)
	assert.False(t, found)

	value, found, err := m.Get(ctx, "other", "a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("2"), value)

	// stale generation entries were purged
	assert.Equal(t, 1, m.Size())

	require.NoError(t, m.Set(ctx, "posts", "a", []byte("3")))
	value, found, err = m.Get(ctx, "posts", "a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("3"), value)
}

func TestMemoryRejectsEmptyNamespace(t *testing.T) {
	ctx := context.Background()
	m := newMemory(t)
	_, _, err := m.Get(ctx, "", "a")
	assert.ErrorIs(t, err, ErrInvalidNamespace)
	assert.ErrorIs(t, m.Set(ctx, "", "a", nil), ErrInvalidNamespace)
	assert.ErrorIs(t, m.FlushNamespace(ctx, ""), ErrInvalidNamespace)
}

func TestMemoryConfigValidate(t *testing.T) {
	cfg := DefaultMemoryConfig()
	require.NoError(t, cfg.Validate())

	cfg.EvictionPercentage = 0
	err := cfg.Validate()
	assert.True(t, IsInvalidConfig(err))

	_, err = NewMemory(MemoryConfig{})
	assert.True(t, IsInvalidConfig(err))
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	c := OrNop(nil)
	require.NoError(t, c.Set(ctx, "posts", "a", []byte("1")))
	_, found, err := c.Get(ctx, "posts", "a")
	require.NoError(t, err)
	assert.False(t, found)
	got, err := c.GetMany(ctx, "posts", []string{"a"})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, c.FlushNamespace(ctx, "posts"))
}
