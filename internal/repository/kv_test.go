package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisKV(t *testing.T) (KVStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewRedisKVStore(rdb, "medportal:test:"), mr
}

func TestKVStore_Backends(t *testing.T) {
	redisStore, _ := newRedisKV(t)
	backends := map[string]KVStore{
		"memory": NewMemoryKVStore(),
		"redis":  redisStore,
	}

	for name, store := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			val, err := store.Get(ctx, "missing")
			if err != nil || val != nil {
				t.Fatalf("Get(missing) = %q, %v; want nil, nil", val, err)
			}

			if err := store.Set(ctx, "a", []byte("1"), 0); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := store.Set(ctx, "b", []byte("2"), time.Hour); err != nil {
				t.Fatalf("Set: %v", err)
			}

			val, err = store.Get(ctx, "a")
			if err != nil || string(val) != "1" {
				t.Fatalf("Get(a) = %q, %v", val, err)
			}
			ok, err := store.Exists(ctx, "b")
			if err != nil || !ok {
				t.Fatalf("Exists(b) = %v, %v", ok, err)
			}

			if err := store.Delete(ctx, "a", "b"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			ok, _ = store.Exists(ctx, "a")
			if ok {
				t.Errorf("a still exists after delete")
			}
			ok, _ = store.Exists(ctx, "b")
			if ok {
				t.Errorf("b still exists after delete")
			}
		})
	}
}

func TestMemoryKVStore_Expiry(t *testing.T) {
	store := NewMemoryKVStore()
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	val, err := store.Get(ctx, "k")
	if err != nil || val != nil {
		t.Errorf("expected expired entry to be gone, got %q, %v", val, err)
	}
}

func TestRedisKVStore_Expiry(t *testing.T) {
	store, mr := newRedisKV(t)
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists("medportal:test:k") {
		t.Fatalf("expected prefixed key in redis")
	}
	mr.FastForward(2 * time.Minute)

	ok, err := store.Exists(ctx, "k")
	if err != nil || ok {
		t.Errorf("Exists after ttl = %v, %v; want false", ok, err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	kv, closeFn, err := Open(ctx, BackendMemory, nil, "")
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	defer closeFn()
	if err := kv.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	mr := miniredis.RunT(t)
	kv, closeFn, err = Open(ctx, BackendRedis, &redis.Options{Addr: mr.Addr()}, "p:")
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	defer closeFn()
	if err := kv.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists("p:k") {
		t.Error("prefixed key not written to redis")
	}

	if _, _, err := Open(ctx, "etcd", nil, ""); err == nil {
		t.Error("unknown backend accepted")
	}
}
