// Package cache 提供带 TTL 的键值缓存，用于记忆化生成服务的调用结果。
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache 是缓存后端的最小接口。实现必须保证单键 get/set 的原子性。
type Cache interface {
	// Get 返回缓存值；未命中时 ok 为 false 且 err 为 nil。
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set 写入缓存值，ttl <= 0 时不写入。
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

const keyPrefix = "lawchat:cache:"

// Key 根据操作类型、模型标识、提示模板版本与输入负载生成确定性的缓存键。
// 模型或模板版本变化时该操作下的所有旧键自然失效。
func Key(operation, modelID, templateVersion string, payload ...string) string {
	h := sha256.New()
	for _, part := range append([]string{operation, modelID, templateVersion}, payload...) {
		// 写入长度前缀，避免 ("ab","c") 与 ("a","bc") 碰撞
		h.Write([]byte{byte(len(part) >> 24), byte(len(part) >> 16), byte(len(part) >> 8), byte(len(part))})
		h.Write([]byte(part))
	}
	return keyPrefix + operation + ":" + hex.EncodeToString(h.Sum(nil))
}
