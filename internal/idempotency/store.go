package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/payhub-next/internal/cache"
)

var (
	// ErrInFlight 同键请求正在处理中
	ErrInFlight = errors.New("idempotency key in flight")
)

const keyPrefix = "idem:"

// Record 已完成请求的响应快照
type Record struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Store 基于 Redis SET NX 的幂等键存储。
// 占位键表示请求处理中，完成后以响应快照覆盖并续期。
type Store struct {
	cache *cache.Client
	ttl   time.Duration
}

// NewStore 构建幂等存储
func NewStore(c *cache.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{cache: c, ttl: ttl}
}

const pendingMarker = "__pending__"

// Reserve 尝试占用幂等键。
// 返回 (nil, nil) 表示占用成功可以继续处理；
// 返回已存在的 Record 表示重放；返回 ErrInFlight 表示冲突。
func (s *Store) Reserve(ctx context.Context, key string) (*Record, error) {
	ok, err := s.cache.Redis().SetNX(ctx, s.key(key), pendingMarker, s.ttl).Result()
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}

	val, err := s.cache.Redis().Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		// 占位键在两次调用之间过期，视为冲突让调用方重试
		return nil, ErrInFlight
	}
	if err != nil {
		return nil, err
	}
	if val == pendingMarker {
		return nil, ErrInFlight
	}

	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &rec, nil
}

// Finalize 以最终响应覆盖占位键
func (s *Store) Finalize(ctx context.Context, key string, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.cache.Redis().Set(ctx, s.key(key), payload, s.ttl).Err()
}

// Cancel 处理失败时释放占位键，允许客户端重试
func (s *Store) Cancel(ctx context.Context, key string) error {
	return s.cache.Redis().Del(ctx, s.key(key)).Err()
}

func (s *Store) key(key string) string {
	return s.cache.Key(keyPrefix + key)
}
