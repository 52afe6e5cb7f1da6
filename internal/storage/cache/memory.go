// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	gerrors "toolgate/pkg/errors"
)

// MemoryStore 进程内实现；过期项在访问时或 Purge 时清理
type MemoryStore struct {
	items map[string]*cacheItem
	mu    sync.RWMutex
}

type cacheItem struct {
	value      []byte
	expiration int64
}

func (i *cacheItem) expired(now int64) bool {
	return i.expiration > 0 && i.expiration < now
}

// NewMemoryStore 创建内存缓存
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*cacheItem),
	}
}

func (s *MemoryStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	var exp int64
	if expiration > 0 {
		exp = time.Now().Add(expiration).UnixNano()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = &cacheItem{value: data, expiration: exp}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string, dest interface{}) error {
	s.mu.RLock()
	item, ok := s.items[key]
	s.mu.RUnlock()
	if !ok || item.expired(time.Now().UnixNano()) {
		return gerrors.Wrapf(gerrors.ErrNotFound, "cache key %s", key)
	}
	if err := json.Unmarshal(item.value, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

func (s *MemoryStore) Take(ctx context.Context, key string, dest interface{}) error {
	s.mu.Lock()
	item, ok := s.items[key]
	delete(s.items, key)
	s.mu.Unlock()
	if !ok || item.expired(time.Now().UnixNano()) {
		return gerrors.Wrapf(gerrors.ErrNotFound, "cache key %s", key)
	}
	if err := json.Unmarshal(item.value, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[key]
	return ok && !item.expired(time.Now().UnixNano()), nil
}

// Purge 删除所有已过期项，返回删除数量
func (s *MemoryStore) Purge() int {
	now := time.Now().UnixNano()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, item := range s.items {
		if item.expired(now) {
			delete(s.items, k)
			n++
		}
	}
	return n
}

// Len 当前项数（含未清理的过期项）
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *MemoryStore) Close() error {
	return nil
}
