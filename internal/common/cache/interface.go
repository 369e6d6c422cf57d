package cache

import (
	"context"
	"time"
)

// KV is the key-value slice of a cache the client needs: one string slot per key.
// Implementations return "" with a nil error for a missing key.
type KV interface {
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair; a zero ttl keeps the key until deleted.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	Del(ctx context.Context, keys ...string) error

	Ping(ctx context.Context) error
	Close() error
}
