package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is returned while a cache backend is considered down,
	// for example when a circuit breaker is open
	ErrUnavailable = errors.New("cache unavailable")

	// ErrInvalidConfig is returned for invalid cache configuration
	ErrInvalidConfig = errors.New("invalid cache configuration")

	// ErrInvalidNamespace is returned for an empty namespace
	ErrInvalidNamespace = errors.New("invalid namespace")
)

// ConfigError describes one invalid configuration field
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in field %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidConfig
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// IsUnavailable checks if the error means the backend is down
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsInvalidConfig checks if the error is a configuration error
func IsInvalidConfig(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}
