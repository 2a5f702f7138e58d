package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache 是基于 Redis 的缓存实现，GET / SET EX 本身即为原子操作，无需额外加锁。
type RedisCache struct {
	redisClient *redis.Client
}

// NewRedisCache 创建一个新的 RedisCache 实例。
func NewRedisCache(redisClient *redis.Client) *RedisCache {
	return &RedisCache{redisClient: redisClient}
}

// Get 从 Redis 读取缓存值。
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.redisClient.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return val, true, nil
}

// Set 写入缓存值并设置过期时间。
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.redisClient.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}
