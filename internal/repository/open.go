package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Open builds the KVStore named by backend. The returned close function
// releases the Redis connection, if any.
func Open(ctx context.Context, backend string, opts *redis.Options, prefix string) (KVStore, func() error, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryKVStore(), func() error { return nil }, nil
	case BackendRedis:
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return NewRedisKVStore(rdb, prefix), rdb.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
