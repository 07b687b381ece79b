package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/payhub-next/internal/config"
)

// Client Redis 客户端封装，统一管理键前缀
type Client struct {
	rdb    *redis.Client
	prefix string
}

// NewClient 按配置构建 Redis 客户端
func NewClient(cfg *config.RedisConfig) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is nil")
	}
	addr := strings.TrimSpace(cfg.Host)
	if addr == "" {
		addr = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = "ph"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", addr, port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Client{rdb: rdb, prefix: prefix}, nil
}

// NewClientFromRedis 基于已有连接构建（测试用）
func NewClientFromRedis(rdb *redis.Client, prefix string) *Client {
	if strings.TrimSpace(prefix) == "" {
		prefix = "ph"
	}
	return &Client{rdb: rdb, prefix: prefix}
}

// Ping 检查连接
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Redis 获取底层客户端
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// Key 拼接带前缀的键名
func (c *Client) Key(key string) string {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return c.prefix
	}
	return fmt.Sprintf("%s:%s", c.prefix, trimmed)
}

// GetJSON 获取 JSON 缓存
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	val, err := c.rdb.Get(ctx, c.Key(key)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON 写入 JSON 缓存
func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.Key(key), payload, ttl).Err()
}

// SetNX 写入带过期的占位键，返回是否写入成功
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, c.Key(key), value, ttl).Result()
}

// Del 删除缓存
func (c *Client) Del(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.Key(key)).Err()
}
