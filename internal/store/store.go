package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound signals that the requested key does not exist.
	ErrNotFound = errors.New("key not found")
	// ErrQuotaExceeded signals that the backend refused a write for lack of space.
	ErrQuotaExceeded = errors.New("store quota exceeded")
)

// Store is a string-keyed byte store. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists at most limit keys starting with prefix. A limit <= 0 means
	// no limit.
	Keys(ctx context.Context, prefix string, limit int) ([]string, error)
}

// Closer is implemented by stores that hold connections or file handles.
type Closer interface {
	Close() error
}
