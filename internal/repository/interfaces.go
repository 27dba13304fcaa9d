package repository

import "context"

// KVStore persists opaque values under string keys.
// Implementations must be safe for concurrent use, and each Set or Remove
// must be atomic for its key.
type KVStore interface {
	// Get returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Remove is a no-op for a missing key.
	Remove(ctx context.Context, key string) error
	Close() error
}
