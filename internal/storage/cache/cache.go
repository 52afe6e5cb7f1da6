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

// Package cache sidecar 的调用快照存储：memory 或 redis，与已注册工具集合共用 registry 配置
package cache

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"toolgate/pkg/config"
)

// NewCache 根据 registry.type 创建 Store；redis 时复用 client，key 前缀为 <key_prefix>:pending
func NewCache(cfg config.RegistryConfig, client redis.UniversalClient) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis cache requires a client")
		}
		return NewRedisStore(client, cfg.KeyPrefix+":pending"), nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
