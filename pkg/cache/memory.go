package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/viccon/sturdyc"
)

// MemoryConfig configures the in-process cache
type MemoryConfig struct {
	// Capacity is the maximum number of entries across all namespaces
	Capacity int `json:"capacity" yaml:"capacity"`

	// NumShards splits the cache to reduce lock contention
	NumShards int `json:"num_shards" yaml:"num_shards"`

	// TTL bounds entry lifetime. Flushes are the primary invalidation;
	// the TTL only reclaims memory for idle entries.
	TTL time.Duration `json:"ttl" yaml:"ttl"`

	// EvictionPercentage is the share of entries evicted when full (1-100)
	EvictionPercentage int `json:"eviction_percentage" yaml:"eviction_percentage"`

	// EvictionInterval sets how often expired entries are swept. Zero keeps
	// the library default.
	EvictionInterval time.Duration `json:"eviction_interval" yaml:"eviction_interval"`
}

// DefaultMemoryConfig returns defaults suited to a single process
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Capacity:           10000,
		NumShards:          64,
		TTL:                24 * time.Hour,
		EvictionPercentage: 10,
	}
}

// Validate checks the configuration
func (c MemoryConfig) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}
	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}
	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}
	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}
	return nil
}

func (c MemoryConfig) options() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

// Memory is an in-process Cache backed by a sharded sturdyc client.
// Entries are stored under "<ns>:<generation>:<key>".
type Memory struct {
	client *sturdyc.Client[[]byte]

	mu          sync.RWMutex
	generations map[string]uint64
}

// NewMemory creates an in-process cache
func NewMemory(cfg MemoryConfig) (*Memory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := sturdyc.New[[]byte](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.options()...,
	)
	return &Memory{
		client:      client,
		generations: make(map[string]uint64),
	}, nil
}

func (m *Memory) generation(ns string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generations[ns]
}

func namespacePrefix(ns string, gen uint64) string {
	return ns + ":" + strconv.FormatUint(gen, 10) + ":"
}

// Get returns a copy-free view of the stored bytes. Callers must not mutate it.
func (m *Memory) Get(_ context.Context, ns, key string) ([]byte, bool, error) {
	if ns == "" {
		return nil, false, ErrInvalidNamespace
	}
	value, ok := m.client.Get(namespacePrefix(ns, m.generation(ns)) + key)
	return value, ok, nil
}

// GetMany returns the values present for keys
func (m *Memory) GetMany(_ context.Context, ns string, keys []string) (map[string][]byte, error) {
	if ns == "" {
		return nil, ErrInvalidNamespace
	}
	prefix := namespacePrefix(ns, m.generation(ns))
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = prefix + key
	}

	found := m.client.GetMany(full)
	result := make(map[string][]byte, len(found))
	for i, key := range keys {
		if value, ok := found[full[i]]; ok {
			result[key] = value
		}
	}
	return result, nil
}

// Set stores value under the namespace's current generation
func (m *Memory) Set(_ context.Context, ns, key string, value []byte) error {
	if ns == "" {
		return ErrInvalidNamespace
	}
	m.client.Set(namespacePrefix(ns, m.generation(ns))+key, value)
	return nil
}

// FlushNamespace bumps the generation and deletes entries of the old one
func (m *Memory) FlushNamespace(_ context.Context, ns string) error {
	if ns == "" {
		return ErrInvalidNamespace
	}
	m.mu.Lock()
	old := m.generations[ns]
	m.generations[ns] = old + 1
	m.mu.Unlock()

	stale := namespacePrefix(ns, old)
	for _, key := range m.client.ScanKeys() {
		if strings.HasPrefix(key, stale) {
			m.client.Delete(key)
		}
	}
	return nil
}

// Size returns the number of stored entries, including stale ones not yet purged
func (m *Memory) Size() int {
	return m.client.Size()
}
