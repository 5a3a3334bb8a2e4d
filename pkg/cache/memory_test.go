package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCacheSetGet(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got string
	if err := mc.Get(ctx, "k", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "v" {
		t.Fatalf("got %q, want v", got)
	}

	if err := mc.Get(ctx, "missing", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("get missing: %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "k", "v", 20*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	var got string
	if err := mc.Get(ctx, "k", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("get expired: %v, want ErrCacheMiss", err)
	}
	ok, err := mc.Exists(ctx, "k")
	if err != nil || ok {
		t.Fatalf("exists after expiry = %v, %v", ok, err)
	}
}

func TestMemoryCacheExpireExtendsTTL(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "k", "v", 20*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	ok, err := mc.Expire(ctx, "k", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expire = %v, %v", ok, err)
	}
	time.Sleep(30 * time.Millisecond)

	var got string
	if err := mc.Get(ctx, "k", &got); err != nil {
		t.Fatalf("get after extended ttl: %v", err)
	}

	ok, err = mc.Expire(ctx, "absent", time.Minute)
	if err != nil || ok {
		t.Fatalf("expire absent = %v, %v, want false", ok, err)
	}
}

func TestMemoryCacheTryLock(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	locked, err := mc.TryLock(ctx, "lock", time.Minute)
	if err != nil || !locked {
		t.Fatalf("first lock = %v, %v", locked, err)
	}
	locked, err = mc.TryLock(ctx, "lock", time.Minute)
	if err != nil || locked {
		t.Fatalf("second lock = %v, %v, want held", locked, err)
	}
	if err := mc.Unlock(ctx, "lock"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	locked, err = mc.TryLock(ctx, "lock", time.Minute)
	if err != nil || !locked {
		t.Fatalf("relock after unlock = %v, %v", locked, err)
	}
}

func TestMemoryCacheDelete(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "a", "1", time.Minute)
	_ = mc.Set(ctx, "b", "2", time.Minute)
	if err := mc.Delete(ctx, "a", "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, err := mc.Exists(ctx, "a", "b")
	if err != nil || ok {
		t.Fatalf("exists after delete = %v, %v", ok, err)
	}
}
