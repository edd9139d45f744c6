package loader

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned for an unusable query configuration:
	// no fields, a list or single query without the id field, an unknown
	// field or a malformed range
	ErrConfiguration = errors.New("invalid loader configuration")

	// ErrStoreUnavailable wraps failures of the persistence store
	ErrStoreUnavailable = errors.New("post store unavailable")
)

// IsConfiguration checks if an error is ErrConfiguration
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsStoreUnavailable checks if an error is ErrStoreUnavailable
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
