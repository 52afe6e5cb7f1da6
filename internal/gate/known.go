package gate

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"toolgate/pkg/log"
)

// KnownTools 已向远端注册过的工具集合；实现必须并发安全，MarkKnown 幂等
type KnownTools interface {
	IsKnown(ctx context.Context, name string) bool
	MarkKnown(ctx context.Context, name string)
}

// MemoryKnownTools 进程内集合，进程退出即清空
type MemoryKnownTools struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

// NewMemoryKnownTools 创建空集合
func NewMemoryKnownTools() *MemoryKnownTools {
	return &MemoryKnownTools{names: make(map[string]struct{})}
}

// IsKnown 实现 KnownTools
func (m *MemoryKnownTools) IsKnown(_ context.Context, name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.names[name]
	return ok
}

// MarkKnown 实现 KnownTools
func (m *MemoryKnownTools) MarkKnown(_ context.Context, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names[name] = struct{}{}
}

// Len 集合大小
func (m *MemoryKnownTools) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.names)
}

// RedisKnownTools 多个 sidecar 副本共享的集合（Redis SET）。
// Redis 出错时视为未知，代价是一次重复的幂等注册。
type RedisKnownTools struct {
	client redis.UniversalClient
	key    string
	logger *log.Logger
}

// NewRedisKnownTools key 通常为 "<prefix>:<application>"
func NewRedisKnownTools(client redis.UniversalClient, key string, logger *log.Logger) *RedisKnownTools {
	if logger == nil {
		logger = log.Discard()
	}
	return &RedisKnownTools{client: client, key: key, logger: logger}
}

// IsKnown 实现 KnownTools
func (r *RedisKnownTools) IsKnown(ctx context.Context, name string) bool {
	ok, err := r.client.SIsMember(ctx, r.key, name).Result()
	if err != nil {
		r.logger.Warn("known tools lookup failed", "key", r.key, "tool", name, "error", err)
		return false
	}
	return ok
}

// MarkKnown 实现 KnownTools
func (r *RedisKnownTools) MarkKnown(ctx context.Context, name string) {
	if err := r.client.SAdd(ctx, r.key, name).Err(); err != nil {
		r.logger.Warn("known tools update failed", "key", r.key, "tool", name, "error", err)
	}
}
