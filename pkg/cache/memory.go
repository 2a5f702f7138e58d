package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache 是进程内缓存实现，用于单实例部署和测试。
// 基于 sync.Map，条目不可变，读取时检查过期，不存在全表锁。
type MemoryCache struct {
	entries sync.Map // key -> *memoryEntry
	now     func() time.Time
}

// NewMemoryCache 创建一个新的 MemoryCache。
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{now: time.Now}
}

// Get 返回未过期的缓存值，过期条目会被顺带删除。
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false, nil
	}
	entry := v.(*memoryEntry)
	if !c.now().Before(entry.expiresAt) {
		c.entries.CompareAndDelete(key, v)
		return nil, false, nil
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

// Set 写入缓存值。相同键后写覆盖先写。
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	c.entries.Store(key, &memoryEntry{value: stored, expiresAt: c.now().Add(ttl)})
	return nil
}
