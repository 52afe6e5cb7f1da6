package cache

import (
	"context"
	"time"
)

// Store 带过期时间的 KV 存储（sidecar 用来在 Before 与 After 之间保存调用快照）
type Store interface {
	// Set 写入；expiration<=0 表示不过期
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	// Get 读取并反序列化到 dest；不存在或已过期返回 errors.ErrNotFound
	Get(ctx context.Context, key string, dest interface{}) error
	// Take 读取后删除
	Take(ctx context.Context, key string, dest interface{}) error
	// Delete 删除，不存在时不报错
	Delete(ctx context.Context, key string) error
	// Exists 检查是否存在
	Exists(ctx context.Context, key string) (bool, error)
	// Close 关闭连接
	Close() error
}
