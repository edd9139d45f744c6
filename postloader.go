// Package postloader loads blog posts from MySQL or SQLite through a
// namespaced read-through cache backed by Redis or process memory.
//
// The building blocks live in pkg/: db (connections, schema, query
// builder), loader (the post loader), cache and redis (cache backends),
// admin (write paths that flush the cache) and httpapi (JSON API).
// This package wires them together for the common cases.
package postloader

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ammar0144/postloader/pkg/cache"
	"github.com/ammar0144/postloader/pkg/config"
	"github.com/ammar0144/postloader/pkg/db"
	"github.com/ammar0144/postloader/pkg/loader"
	"github.com/ammar0144/postloader/pkg/models"
	"github.com/ammar0144/postloader/pkg/redis"
)

var (
	_ cache.Cache  = (*redis.Manager)(nil)
	_ cache.Cache  = (*cache.Memory)(nil)
	_ cache.Cache  = (*cache.Breaker)(nil)
	_ loader.Store = (*db.Manager)(nil)
)

// Config represents database configuration
type Config = db.Config

// RedisConfig represents Redis configuration
type RedisConfig = redis.Config

// Post is a loaded blog post
type Post = models.Post

// PostSet is an ordered, id-indexed set of posts
type PostSet = models.PostSet

// NewManager creates a new database manager
func NewManager(config *Config) (*db.Manager, error) {
	return db.NewManager(config)
}

// NewRedisManager creates a new Redis manager
func NewRedisManager(config *RedisConfig, opts ...redis.Option) (*redis.Manager, error) {
	return redis.NewManager(config, opts...)
}

// NewLoader creates a loader over m. A nil cache disables caching.
func NewLoader(m *db.Manager, c cache.Cache, opts ...loader.Option) *loader.Loader {
	return loader.New(m, append([]loader.Option{loader.WithCache(c)}, opts...)...)
}

// NewCache builds the configured cache backend. The returned close
// function releases its connections.
func NewCache(cfg config.CacheConfig, logger *zap.Logger) (cache.Cache, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	noClose := func() error { return nil }

	switch cfg.Backend {
	case config.BackendRedis:
		if cfg.Redis == nil || !cfg.Redis.Enabled {
			logger.Warn("redis cache backend selected but disabled, caching is off")
			return cache.Nop{}, noClose, nil
		}
		manager, err := redis.NewManager(cfg.Redis, redis.WithLogger(logger.Named("redis")))
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		breaker, err := cache.NewBreaker(manager, cfg.Breaker, logger.Named("breaker"))
		if err != nil {
			_ = manager.Close()
			return nil, nil, fmt.Errorf("redis cache breaker: %w", err)
		}
		return breaker, manager.Close, nil

	case config.BackendMemory:
		memory, err := cache.NewMemory(cfg.Memory)
		if err != nil {
			return nil, nil, fmt.Errorf("memory cache: %w", err)
		}
		return memory, noClose, nil

	case config.BackendNone, "":
		return cache.Nop{}, noClose, nil

	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
