package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache key layout. The namespace sits in a hash tag so that every key of a
// namespace maps to one cluster slot and MGET works in cluster mode.
//
//	<prefix>:{<ns>}:<generation>:<key>   entry
//	<prefix>:{<ns>}:gen                   generation counter
const (
	cacheKeySeparator   = ":"
	cacheGenerationName = "gen"
)

// Manager is a namespaced cache on top of Redis. Each namespace has a
// generation counter; entries are written under the current generation and
// FlushNamespace increments it, orphaning every older entry at once.
type Manager struct {
	config        *Config
	client        redis.UniversalClient
	clusterClient *redis.ClusterClient
	metrics       *Metrics
	logger        *zap.Logger

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger used for cache events
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClient uses an existing client instead of dialing from the config
func WithClient(client redis.UniversalClient) Option {
	return func(m *Manager) {
		m.client = client
		if cc, ok := client.(*redis.ClusterClient); ok {
			m.clusterClient = cc
		}
	}
}

// NewManager creates a new Redis cache manager
func NewManager(config *Config, opts ...Option) (*Manager, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	manager := &Manager{
		config:  config,
		metrics: NewMetrics(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(manager)
	}

	if err := manager.initializeCodec(); err != nil {
		return nil, fmt.Errorf("failed to initialize codec: %w", err)
	}

	// Initialize Redis client based on configuration
	if manager.client == nil {
		manager.initializeClient()
	}

	return manager, nil
}

// initializeClient sets up the Redis client based on configuration
func (m *Manager) initializeClient() {
	if !m.config.Enabled {
		return // Skip initialization if cache is disabled
	}

	if m.config.IsClusterMode() {
		// Redis Cluster configuration
		m.clusterClient = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:           m.config.Cluster.Addresses,
			Username:        m.config.Cluster.Username,
			Password:        m.config.Cluster.Password,
			PoolSize:        m.config.PoolSize,
			MinIdleConns:    m.config.MinIdleConns,
			ConnMaxLifetime: m.config.MaxConnAge,
			PoolTimeout:     m.config.PoolTimeout,
			ConnMaxIdleTime: m.config.IdleTimeout,
			ReadTimeout:     m.config.ReadTimeout,
			WriteTimeout:    m.config.WriteTimeout,
			DialTimeout:     m.config.DialTimeout,
		})
		m.client = m.clusterClient
		return
	}

	// Single Redis instance configuration
	m.client = redis.NewClient(&redis.Options{
		Addr:            m.config.GetAddr(),
		Password:        m.config.Password,
		DB:              m.config.Database,
		PoolSize:        m.config.PoolSize,
		MinIdleConns:    m.config.MinIdleConns,
		ConnMaxLifetime: m.config.MaxConnAge,
		PoolTimeout:     m.config.PoolTimeout,
		ConnMaxIdleTime: m.config.IdleTimeout,
		ReadTimeout:     m.config.ReadTimeout,
		WriteTimeout:    m.config.WriteTimeout,
		DialTimeout:     m.config.DialTimeout,
	})
}

// Config returns the manager's configuration
func (m *Manager) Config() *Config {
	return m.config
}

// Close closes the Redis connection and releases codec resources
func (m *Manager) Close() error {
	if m.encoder != nil {
		_ = m.encoder.Close()
	}
	if m.decoder != nil {
		m.decoder.Close()
	}
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Ping tests the Redis connection
// Returns nil if cache is disabled (not an error condition)
// Returns ErrClientNotInitialized if client is not initialized
// Returns ErrConnectionFailed if ping fails
func (m *Manager) Ping(ctx context.Context) error {
	// Cache disabled is not an error - it's a valid configuration state
	if !m.config.Enabled {
		return nil
	}

	// Client not initialized when cache is enabled - this is an error
	if m.client == nil {
		return ErrClientNotInitialized
	}

	// Test actual connection
	result := m.client.Ping(ctx)
	if result.Err() != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, result.Err())
	}

	return nil
}

// checkClient validates that cache is enabled and client is initialized
// Returns ErrCacheDisabled if cache is disabled
// Returns ErrClientNotInitialized if client is nil
func (m *Manager) checkClient() error {
	if !m.config.Enabled {
		return ErrCacheDisabled
	}
	if m.client == nil {
		return ErrClientNotInitialized
	}
	return nil
}

func (m *Manager) namespaceTag(ns string) string {
	return m.config.KeyPrefix + cacheKeySeparator + "{" + ns + "}" + cacheKeySeparator
}

func (m *Manager) generationKey(ns string) string {
	return m.namespaceTag(ns) + cacheGenerationName
}

func (m *Manager) entryPrefix(ns string, gen uint64) string {
	return m.namespaceTag(ns) + strconv.FormatUint(gen, 10) + cacheKeySeparator
}

// generation returns the current generation of ns, creating the counter on
// first use. New counters start at the current Unix time in nanoseconds so a
// counter lost to eviction or restart never revives entries written under an
// earlier incarnation.
func (m *Manager) generation(ctx context.Context, ns string) (uint64, error) {
	key := m.generationKey(ns)
	gen, err := m.client.Get(ctx, key).Uint64()
	if err == nil {
		return gen, nil
	}
	if !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("redis get generation: %w", err)
	}

	seed := uint64(time.Now().UnixNano())
	if err := m.client.SetNX(ctx, key, seed, 0).Err(); err != nil {
		return 0, fmt.Errorf("redis init generation: %w", err)
	}
	gen, err = m.client.Get(ctx, key).Uint64()
	if err != nil {
		return 0, fmt.Errorf("redis get generation: %w", err)
	}
	return gen, nil
}

func (m *Manager) prepare(ctx context.Context, ns string) (string, error) {
	if err := m.checkClient(); err != nil {
		return "", err
	}
	if ns == "" {
		return "", ErrInvalidNamespace
	}
	gen, err := m.generation(ctx, ns)
	if err != nil {
		m.metrics.RecordCacheError()
		return "", err
	}
	return m.entryPrefix(ns, gen), nil
}

// Get retrieves a value from the namespace's current generation
func (m *Manager) Get(ctx context.Context, ns, key string) ([]byte, bool, error) {
	prefix, err := m.prepare(ctx, ns)
	if err != nil {
		return nil, false, err
	}

	start := time.Now()
	raw, err := m.client.Get(ctx, prefix+key).Bytes()
	m.metrics.RecordGet(time.Since(start))

	if errors.Is(err, redis.Nil) {
		m.metrics.RecordCacheMiss(1)
		if m.config.Logging.LogCacheMisses {
			m.logger.Debug("cache miss", zap.String("namespace", ns), zap.String("key", key))
		}
		return nil, false, nil
	}
	if err != nil {
		m.metrics.RecordCacheError()
		return nil, false, fmt.Errorf("redis get error: %w", err)
	}

	value, err := m.decodeValue(raw)
	if err != nil {
		m.metrics.RecordCacheError()
		return nil, false, err
	}

	m.metrics.RecordCacheHit(1)
	if m.config.Logging.LogCacheHits {
		m.logger.Debug("cache hit", zap.String("namespace", ns), zap.String("key", key))
	}
	return value, true, nil
}

// GetMany retrieves several values with one MGET. Keys that are missing or
// whose stored value cannot be decoded are left out of the result.
func (m *Manager) GetMany(ctx context.Context, ns string, keys []string) (map[string][]byte, error) {
	prefix, err := m.prepare(ctx, ns)
	if err != nil {
		return nil, err
	}
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = prefix + key
	}

	start := time.Now()
	values, err := m.client.MGet(ctx, full...).Result()
	m.metrics.RecordGet(time.Since(start))
	if err != nil {
		m.metrics.RecordCacheError()
		return nil, fmt.Errorf("redis mget error: %w", err)
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		value, err := m.decodeValue([]byte(s))
		if err != nil {
			m.metrics.RecordCacheError()
			m.logger.Warn("dropping undecodable cache value",
				zap.String("namespace", ns), zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		result[keys[i]] = value
	}

	m.metrics.RecordCacheHit(len(result))
	m.metrics.RecordCacheMiss(len(keys) - len(result))
	return result, nil
}

// Set stores a value under the namespace's current generation with the
// configured TTL
func (m *Manager) Set(ctx context.Context, ns, key string, value []byte) error {
	prefix, err := m.prepare(ctx, ns)
	if err != nil {
		return err
	}

	if limit := m.config.LargeValue.MaxValueSize; limit > 0 && len(value) > limit {
		m.metrics.RecordOversized()
		return fmt.Errorf("%w: %d bytes exceeds maximum %d bytes", ErrValueTooLarge, len(value), limit)
	}

	start := time.Now()
	err = m.client.Set(ctx, prefix+key, m.encodeValue(value), m.config.DefaultTTL).Err()
	m.metrics.RecordSet(time.Since(start))
	if err != nil {
		m.metrics.RecordCacheError()
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// FlushNamespace makes every entry in ns unreachable by incrementing its
// generation, then purges entries of older generations if configured.
// Purge failures are logged and do not fail the flush.
func (m *Manager) FlushNamespace(ctx context.Context, ns string) error {
	if _, err := m.prepare(ctx, ns); err != nil {
		return err
	}

	start := time.Now()
	gen, err := m.client.Incr(ctx, m.generationKey(ns)).Uint64()
	m.metrics.RecordFlush(time.Since(start))
	if err != nil {
		m.metrics.RecordCacheError()
		return fmt.Errorf("redis flush namespace %s: %w", ns, err)
	}

	if m.config.Logging.LogInvalidations {
		m.logger.Info("cache namespace flushed", zap.String("namespace", ns), zap.Uint64("generation", gen))
	}

	if m.config.Invalidation.PurgeStale {
		purged, err := m.purgeStale(ctx, ns, gen)
		m.metrics.RecordPurged(purged)
		if err != nil {
			m.logger.Warn("failed to purge stale cache generations",
				zap.String("namespace", ns), zap.Int("purged", purged), zap.Error(err))
		}
	}
	return nil
}

// purgeStale removes entries of ns whose generation is below current, using
// SCAN instead of KEYS so Redis is never blocked. Keys of newer generations
// written by a concurrent flush are left alone.
func (m *Manager) purgeStale(ctx context.Context, ns string, current uint64) (int, error) {
	tag := m.namespaceTag(ns)
	pattern := tag + "*"

	scan := func(ctx context.Context, client redis.Cmdable) (int, error) {
		var (
			cursor uint64
			purged int
		)
		for {
			batch, next, err := client.Scan(ctx, cursor, pattern, int64(m.config.Invalidation.ScanBatchSize)).Result()
			if err != nil {
				return purged, fmt.Errorf("failed to scan keys with pattern %s: %w", pattern, err)
			}

			stale := batch[:0]
			for _, key := range batch {
				genPart, _, ok := strings.Cut(strings.TrimPrefix(key, tag), cacheKeySeparator)
				if !ok {
					continue
				}
				gen, err := strconv.ParseUint(genPart, 10, 64)
				if err != nil || gen >= current {
					continue
				}
				stale = append(stale, key)
			}

			// Delete keys in batches to avoid large atomic operations
			if len(stale) > 0 {
				n, err := client.Del(ctx, stale...).Result()
				if err != nil {
					return purged, fmt.Errorf("failed to delete batch: %w", err)
				}
				purged += int(n)
			}

			// cursor == 0 means we've iterated through all keys
			if next == 0 {
				return purged, nil
			}
			cursor = next
		}
	}

	if m.clusterClient == nil {
		return scan(ctx, m.client)
	}

	// hash tags pin the namespace to one slot, but which master owns it is
	// not known here, so every master is scanned
	var total atomic.Int64
	err := m.clusterClient.ForEachMaster(ctx, func(ctx context.Context, client *redis.Client) error {
		n, err := scan(ctx, client)
		total.Add(int64(n))
		return err
	})
	return int(total.Load()), err
}

// GetStats returns Redis connection and performance statistics
func (m *Manager) GetStats(ctx context.Context) (map[string]interface{}, error) {
	if err := m.checkClient(); err != nil {
		return nil, err
	}

	stats := make(map[string]interface{})

	// Get Redis server info
	info := m.client.Info(ctx, "memory", "stats")
	if info.Err() != nil {
		return nil, fmt.Errorf("failed to get redis info: %w", info.Err())
	}

	stats["redis_info"] = info.Val()
	stats["metrics"] = m.GetMetrics()
	return stats, nil
}

// GetMetrics returns current cache performance metrics
func (m *Manager) GetMetrics() MetricsSnapshot {
	if m.metrics == nil {
		return MetricsSnapshot{}
	}
	return m.metrics.GetSnapshot()
}

// ResetMetrics resets all performance metrics counters
func (m *Manager) ResetMetrics() {
	if m.metrics != nil {
		m.metrics.Reset()
	}
}
