// Package store provides counter storage backends for rate limiting.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned when a key is not found in the store.
var ErrKeyNotFound = errors.New("key not found")

// Store defines the interface for shared rate limit counters.
type Store interface {
	// Get retrieves the value for the given key.
	Get(ctx context.Context, key string) (int64, error)

	// IncrementWithExpiry atomically increments the value and sets the
	// expiration if the key is new. Returns the value after increment.
	IncrementWithExpiry(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error)

	// Delete removes the key from the store.
	Delete(ctx context.Context, key string) error

	// Close closes the store and releases resources.
	Close() error
}
