// Package config loads the postloaderd configuration: built-in defaults,
// then an optional YAML file, then POSTLOADER_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ammar0144/postloader/pkg/cache"
	"github.com/ammar0144/postloader/pkg/db"
	"github.com/ammar0144/postloader/pkg/loader"
	"github.com/ammar0144/postloader/pkg/redis"
)

// Cache backends
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendNone   = "none"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "POSTLOADER_"

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Config holds all daemon configuration
type Config struct {
	Environment string `json:"environment" yaml:"environment" validate:"oneof=development production"`

	Database *db.Config   `json:"database" yaml:"database" validate:"required"`
	Cache    CacheConfig  `json:"cache" yaml:"cache"`
	Loader   LoaderConfig `json:"loader" yaml:"loader"`
	HTTP     HTTPConfig   `json:"http" yaml:"http"`
	Log      LogConfig    `json:"log" yaml:"log"`
}

// CacheConfig selects and configures the cache backend
type CacheConfig struct {
	Backend string              `json:"backend" yaml:"backend" validate:"oneof=redis memory none"`
	Redis   *redis.Config       `json:"redis" yaml:"redis"`
	Memory  cache.MemoryConfig  `json:"memory" yaml:"memory"`
	Breaker cache.BreakerConfig `json:"breaker" yaml:"breaker"`
}

// LoaderConfig holds the defaults applied to every request's loader
type LoaderConfig struct {
	// Tenant scopes reads and writes; unset serves rows without a tenant
	Tenant *int64 `json:"tenant" yaml:"tenant"`

	// TimeZone is the IANA zone months are computed in
	TimeZone string `json:"timezone" yaml:"timezone" validate:"required"`

	// Fields lists the default selected fields by name
	Fields []string `json:"fields" yaml:"fields" validate:"dive,required"`

	OrderBy string `json:"order_by" yaml:"order_by"`

	// PageSize is the default list limit; 0 lists everything
	PageSize int `json:"page_size" yaml:"page_size" validate:"gte=0,lte=1000"`

	// MaxPageSize caps the limit a request may ask for
	MaxPageSize int `json:"max_page_size" yaml:"max_page_size" validate:"gte=1,lte=10000"`
}

// HTTPConfig configures the HTTP listener
type HTTPConfig struct {
	Address         string        `json:"address" yaml:"address" validate:"required"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gte=0"`
	EnableAdmin     bool          `json:"enable_admin" yaml:"enable_admin"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Environment: "development",
		Database:    db.DefaultConfig(),
		Cache: CacheConfig{
			Backend: BackendMemory,
			Redis:   redis.DefaultConfig(),
			Memory:  cache.DefaultMemoryConfig(),
			Breaker: cache.DefaultBreakerConfig("redis"),
		},
		Loader: LoaderConfig{
			TimeZone:    "UTC",
			Fields:      loader.DefaultFields.Names(),
			OrderBy:     loader.DefaultOrderBy,
			PageSize:    20,
			MaxPageSize: 100,
		},
		HTTP: HTTPConfig{
			Address:         ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints, then each section's own rules
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("%w: database: %w", ErrInvalid, err)
	}

	switch c.Cache.Backend {
	case BackendRedis:
		if c.Cache.Redis == nil {
			return fmt.Errorf("%w: cache.redis is required for the redis backend", ErrInvalid)
		}
		if err := c.Cache.Redis.Validate(); err != nil {
			return fmt.Errorf("%w: cache.redis: %w", ErrInvalid, err)
		}
		if err := c.Cache.Breaker.Validate(); err != nil {
			return fmt.Errorf("%w: cache.breaker: %w", ErrInvalid, err)
		}
	case BackendMemory:
		if err := c.Cache.Memory.Validate(); err != nil {
			return fmt.Errorf("%w: cache.memory: %w", ErrInvalid, err)
		}
	}

	if _, err := c.Loader.Location(); err != nil {
		return fmt.Errorf("%w: loader.timezone: %w", ErrInvalid, err)
	}
	if _, err := c.Loader.FieldSet(); err != nil {
		return fmt.Errorf("%w: loader.fields: %w", ErrInvalid, err)
	}
	if c.Loader.PageSize > c.Loader.MaxPageSize {
		return fmt.Errorf("%w: loader.page_size exceeds max_page_size", ErrInvalid)
	}
	return nil
}

// IsProduction reports whether the daemon runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Location resolves the configured zone
func (c LoaderConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.TimeZone)
}

// FieldSet parses the configured field names
func (c LoaderConfig) FieldSet() (loader.FieldSet, error) {
	var s loader.FieldSet
	for _, name := range c.Fields {
		f, err := loader.ParseField(name)
		if err != nil {
			return 0, err
		}
		s = s.With(f)
	}
	return s, nil
}

// QueryConfig returns the base query configuration for request loaders
func (c LoaderConfig) QueryConfig() (loader.QueryConfig, error) {
	fields, err := c.FieldSet()
	if err != nil {
		return loader.QueryConfig{}, err
	}
	q := loader.QueryConfig{
		Tenant:  c.Tenant,
		Fields:  fields,
		OrderBy: c.OrderBy,
	}
	if c.PageSize > 0 {
		q.Range = &loader.Range{Limit: c.PageSize}
	}
	return q, nil
}

// applyEnv overlays POSTLOADER_* variables
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	env := envReader{lookup: lookup}

	env.setString("ENVIRONMENT", &c.Environment)

	env.setString("DB_DRIVER", &c.Database.Driver)
	env.setString("DB_HOST", &c.Database.Host)
	env.setInt("DB_PORT", &c.Database.Port)
	env.setString("DB_NAME", &c.Database.Database)
	env.setString("DB_USER", &c.Database.Username)
	env.setString("DB_PASSWORD", &c.Database.Password)

	env.setString("CACHE_BACKEND", &c.Cache.Backend)
	if c.Cache.Redis != nil {
		env.setString("REDIS_HOST", &c.Cache.Redis.Host)
		env.setInt("REDIS_PORT", &c.Cache.Redis.Port)
		env.setString("REDIS_PASSWORD", &c.Cache.Redis.Password)
		env.setString("REDIS_KEY_PREFIX", &c.Cache.Redis.KeyPrefix)
		if v, ok := env.get("REDIS_CLUSTER_ADDRESSES"); ok {
			c.Cache.Redis.Cluster.Enabled = v != ""
			c.Cache.Redis.Cluster.Addresses = splitList(v)
		}
	}

	env.setString("TIMEZONE", &c.Loader.TimeZone)
	if v, ok := env.get("TENANT"); ok {
		if v == "" {
			c.Loader.Tenant = nil
		} else {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				env.fail("TENANT", err)
			} else {
				c.Loader.Tenant = &id
			}
		}
	}
	if v, ok := env.get("FIELDS"); ok {
		c.Loader.Fields = splitList(v)
	}
	env.setInt("PAGE_SIZE", &c.Loader.PageSize)

	env.setString("HTTP_ADDRESS", &c.HTTP.Address)
	env.setBool("HTTP_ENABLE_ADMIN", &c.HTTP.EnableAdmin)

	env.setString("LOG_LEVEL", &c.Log.Level)
	env.setString("LOG_FORMAT", &c.Log.Format)

	return env.err
}

type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + key)
	return strings.TrimSpace(v), ok
}

func (e *envReader) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("%w: %s%s: %w", ErrInvalid, EnvPrefix, key, err)
	}
}

func (e *envReader) setString(key string, dest *string) {
	if v, ok := e.get(key); ok && v != "" {
		*dest = v
	}
}

func (e *envReader) setInt(key string, dest *int) {
	v, ok := e.get(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dest = n
}

func (e *envReader) setBool(key string, dest *bool) {
	v, ok := e.get(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dest = b
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level       string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format      string `json:"format" yaml:"format" validate:"oneof=json console"`
	Development bool   `json:"development" yaml:"development"`
}

// NewLogger builds a logger from the configuration
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	if c.Format != "" {
		zc.Encoding = c.Format
	}
	return zc.Build()
}
