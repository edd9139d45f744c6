package admin

import (
	"errors"
	"fmt"
)

var (
	// ErrDatabase wraps failed writes. Nothing was committed.
	ErrDatabase = errors.New("admin write failed")

	// ErrFlushFailed reports a committed write whose cache flush failed.
	// Cached post data may be stale until the next successful flush.
	ErrFlushFailed = errors.New("cache flush failed")

	// ErrFileRemoval wraps failures of the FileRemover
	ErrFileRemoval = errors.New("file removal failed")
)

// IsFlushFailed checks if the error is a failed flush after a commit
func IsFlushFailed(err error) bool {
	return errors.Is(err, ErrFlushFailed)
}

// IsDatabase checks if the error is a failed write
func IsDatabase(err error) bool {
	return errors.Is(err, ErrDatabase)
}

func dbError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDatabase, op, err)
}
