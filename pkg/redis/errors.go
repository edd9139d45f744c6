package redis

import "errors"

// Sentinel errors for Redis operations
var (
	// ErrCacheDisabled is returned when attempting operations on a disabled cache
	ErrCacheDisabled = errors.New("redis cache is disabled")

	// ErrClientNotInitialized is returned when the Redis client is nil
	ErrClientNotInitialized = errors.New("redis client not initialized")

	// ErrConnectionFailed is returned when Redis connection cannot be established
	ErrConnectionFailed = errors.New("redis connection failed")

	// ErrInvalidNamespace is returned for an empty namespace
	ErrInvalidNamespace = errors.New("invalid cache namespace")

	// ErrValueTooLarge is returned when a value exceeds LargeValue.MaxValueSize
	ErrValueTooLarge = errors.New("cache value too large")

	// ErrCorruptValue is returned when a stored value cannot be decoded
	ErrCorruptValue = errors.New("corrupt cache value")
)

// IsCacheDisabled checks if an error is ErrCacheDisabled
func IsCacheDisabled(err error) bool {
	return errors.Is(err, ErrCacheDisabled)
}

// IsConnectionFailed checks if an error is ErrConnectionFailed
func IsConnectionFailed(err error) bool {
	return errors.Is(err, ErrConnectionFailed)
}

// IsValueTooLarge checks if an error is ErrValueTooLarge
func IsValueTooLarge(err error) bool {
	return errors.Is(err, ErrValueTooLarge)
}
