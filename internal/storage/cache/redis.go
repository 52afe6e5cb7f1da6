package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	gerrors "toolgate/pkg/errors"
)

// RedisStore 多个 sidecar 副本共享的实现；过期交给 Redis
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore 创建 RedisStore；client 由调用方持有和关闭
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + ":" + k
}

func (s *RedisStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	if expiration < 0 {
		expiration = 0
	}
	return s.client.Set(ctx, s.key(key), data, expiration).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	return s.decode(key, data, err, dest)
}

func (s *RedisStore) Take(ctx context.Context, key string, dest interface{}) error {
	data, err := s.client.GetDel(ctx, s.key(key)).Bytes()
	return s.decode(key, data, err, dest)
}

func (s *RedisStore) decode(key string, data []byte, err error, dest interface{}) error {
	if errors.Is(err, redis.Nil) {
		return gerrors.Wrapf(gerrors.ErrNotFound, "cache key %s", key)
	}
	if err != nil {
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close 不关闭共享的 client
func (s *RedisStore) Close() error {
	return nil
}
