package repository

import (
	"context"
	"time"
)

// KVStore abstracts small persisted key/value state: the client session
// tokens and the dev server refresh-token allow-list.
// Implementations: Redis or in-memory.
type KVStore interface {
	// Set stores value under key. A ttl <= 0 keeps the entry until deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns nil, nil when key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
}
