package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/payhub-next/internal/cache"
)

var (
	// ErrNotAcquired 锁已被其他持有者占用
	ErrNotAcquired = errors.New("lock not acquired")
)

// releaseScript 比对令牌后删除，避免释放他人持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker 基于 Redis 的分布式锁
type Locker struct {
	cache *cache.Client
	ttl   time.Duration
}

// Lock 一次成功获取的锁实例
type Lock struct {
	locker *Locker
	key    string
	token  string
}

// NewLocker 构建分布式锁工厂
func NewLocker(c *cache.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Locker{cache: c, ttl: ttl}
}

// Acquire 尝试获取命名锁，已被占用时返回 ErrNotAcquired。
// 值为随机令牌，释放时凭令牌比对，TTL 兜底防止持有者崩溃后死锁。
func (l *Locker) Acquire(ctx context.Context, name string) (*Lock, error) {
	token := uuid.NewString()
	key := l.cache.Key("lock:" + name)
	ok, err := l.cache.Redis().SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &Lock{locker: l, key: key, token: token}, nil
}

// Release 释放锁。令牌不匹配（锁已过期被他人持有）时静默返回，
// 返回值表示本次是否实际删除了键。
func (lk *Lock) Release(ctx context.Context) (bool, error) {
	res, err := releaseScript.Run(ctx, lk.locker.cache.Redis(), []string{lk.key}, lk.token).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}
