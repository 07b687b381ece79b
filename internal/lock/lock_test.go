package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/payhub-next/internal/cache"
)

// 需要真实 Redis，通过 PAYHUB_TEST_REDIS_ADDR 指定地址，未设置时跳过
func setupLockTest(t *testing.T) *Locker {
	t.Helper()
	addr := os.Getenv("PAYHUB_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PAYHUB_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("redis ping failed: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	prefix := fmt.Sprintf("lock_test_%d", time.Now().UnixNano())
	return NewLocker(cache.NewClientFromRedis(rdb, prefix), 30*time.Second)
}

func TestAcquireMutualExclusion(t *testing.T) {
	locker := setupLockTest(t)
	ctx := context.Background()

	first, err := locker.Acquire(ctx, "job_a")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if _, err := locker.Acquire(ctx, "job_a"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired while held, got %v", err)
	}

	released, err := first.Release(ctx)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if !released {
		t.Fatalf("expected release to delete the key")
	}

	// 释放后可再次获取
	second, err := locker.Acquire(ctx, "job_a")
	if err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	if _, err := second.Release(ctx); err != nil {
		t.Fatalf("cleanup release failed: %v", err)
	}
}

func TestDifferentNamesIndependent(t *testing.T) {
	locker := setupLockTest(t)
	ctx := context.Background()

	a, err := locker.Acquire(ctx, "job_a")
	if err != nil {
		t.Fatalf("acquire a failed: %v", err)
	}
	b, err := locker.Acquire(ctx, "job_b")
	if err != nil {
		t.Fatalf("acquire b must succeed independently: %v", err)
	}
	_, _ = a.Release(ctx)
	_, _ = b.Release(ctx)
}

func TestReleaseTokenChecked(t *testing.T) {
	locker := setupLockTest(t)
	ctx := context.Background()

	held, err := locker.Acquire(ctx, "job_token")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	// 伪造持有者：相同键但令牌不同，释放必须不删除真实持有者的键
	impostor := &Lock{locker: locker, key: held.key, token: "someone-else"}
	released, err := impostor.Release(ctx)
	if err != nil {
		t.Fatalf("impostor release errored: %v", err)
	}
	if released {
		t.Fatalf("release with wrong token must not delete the key")
	}

	// 真实持有者仍然占有锁
	if _, err := locker.Acquire(ctx, "job_token"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("lock must still be held, got %v", err)
	}
	if _, err := held.Release(ctx); err != nil {
		t.Fatalf("holder release failed: %v", err)
	}
}
