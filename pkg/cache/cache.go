// Package cache defines the namespaced byte cache consulted by the loader
// and its in-process backends. The Redis backend lives in pkg/redis.
//
// A namespace groups entries that are invalidated together. FlushNamespace
// makes every entry written before the call unreachable; implementations use
// a per-namespace generation so a flush costs O(1) regardless of namespace
// size, and stale generations are purged in the background or lazily.
package cache

import (
	"context"
)

// Cache is a namespaced key/value store for opaque payloads.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the value stored under key in ns. found is false on a miss.
	Get(ctx context.Context, ns, key string) (value []byte, found bool, err error)

	// GetMany returns the values present for keys in ns. Missing keys are
	// absent from the result map.
	GetMany(ctx context.Context, ns string, keys []string) (map[string][]byte, error)

	// Set stores value under key in ns until the namespace is flushed.
	Set(ctx context.Context, ns, key string, value []byte) error

	// FlushNamespace invalidates every entry in ns.
	FlushNamespace(ctx context.Context, ns string) error
}

// Nop is a disabled cache: every lookup misses and writes are discarded.
type Nop struct{}

// Get always misses
func (Nop) Get(context.Context, string, string) ([]byte, bool, error) { return nil, false, nil }

// GetMany always returns an empty map
func (Nop) GetMany(context.Context, string, []string) (map[string][]byte, error) {
	return map[string][]byte{}, nil
}

// Set discards the value
func (Nop) Set(context.Context, string, string, []byte) error { return nil }

// FlushNamespace does nothing
func (Nop) FlushNamespace(context.Context, string) error { return nil }

// OrNop returns c, or Nop when c is nil
func OrNop(c Cache) Cache {
	if c == nil {
		return Nop{}
	}
	return c
}
