package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig configures the circuit breaker placed in front of a
// remote cache
type BreakerConfig struct {
	Name             string        `json:"name" yaml:"name"`
	MaxRequests      uint32        `json:"max_requests" yaml:"max_requests"`
	Interval         time.Duration `json:"interval" yaml:"interval"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout"`
	FailureThreshold float64       `json:"failure_threshold" yaml:"failure_threshold"`
	MinRequests      uint32        `json:"min_requests" yaml:"min_requests"`
}

// DefaultBreakerConfig returns a default breaker configuration
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 0.5,
		MinRequests:      10,
	}
}

// Validate checks the configuration
func (c BreakerConfig) Validate() error {
	if c.FailureThreshold <= 0 || c.FailureThreshold > 1 {
		return &ConfigError{Field: "FailureThreshold", Message: "must be in (0, 1]"}
	}
	if c.Timeout < 0 || c.Interval < 0 {
		return &ConfigError{Field: "Timeout", Message: "durations must be non-negative"}
	}
	return nil
}

// Breaker wraps a Cache with a circuit breaker. While open, calls fail fast
// with ErrUnavailable instead of waiting on a dead backend. Misses count as
// successes; only backend errors trip the breaker.
type Breaker struct {
	next   Cache
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewBreaker wraps next
func NewBreaker(next Cache, cfg BreakerConfig, logger *zap.Logger) (*Breaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Breaker{next: next, logger: logger}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("cache circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			// caller cancellation says nothing about backend health
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return b, nil
}

// State returns the breaker state
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return result, err
}

type getResult struct {
	value []byte
	found bool
}

// Get forwards to the wrapped cache
func (b *Breaker) Get(ctx context.Context, ns, key string) ([]byte, bool, error) {
	result, err := b.execute(func() (interface{}, error) {
		value, found, err := b.next.Get(ctx, ns, key)
		return getResult{value: value, found: found}, err
	})
	if err != nil {
		return nil, false, err
	}
	r := result.(getResult)
	return r.value, r.found, nil
}

// GetMany forwards to the wrapped cache
func (b *Breaker) GetMany(ctx context.Context, ns string, keys []string) (map[string][]byte, error) {
	result, err := b.execute(func() (interface{}, error) {
		return b.next.GetMany(ctx, ns, keys)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string][]byte), nil
}

// Set forwards to the wrapped cache
func (b *Breaker) Set(ctx context.Context, ns, key string, value []byte) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, b.next.Set(ctx, ns, key, value)
	})
	return err
}

// FlushNamespace forwards to the wrapped cache. Flushes bypass the open
// state check: a dropped flush would leave stale data behind.
func (b *Breaker) FlushNamespace(ctx context.Context, ns string) error {
	return b.next.FlushNamespace(ctx, ns)
}
