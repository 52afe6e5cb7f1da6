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

// Package secrets 解析 auth_token_ref 这类 secret 引用
package secrets

import (
	"context"
	"fmt"
	"strings"
)

// Store Secret 只读来源
type Store interface {
	// Get 获取 secret 值
	Get(ctx context.Context, key string) (string, error)
}

// Resolver 按引用前缀分发到具体 Store
//
// 引用格式：env:NAME | file:/path | vault:path#field | literal:value
type Resolver struct {
	stores map[string]Store
}

// NewResolver 创建 Resolver；env/file/literal 总是可用，vault 需显式 Register
func NewResolver() *Resolver {
	return &Resolver{stores: map[string]Store{
		"env":     NewEnvStore(),
		"file":    NewFileStore(),
		"literal": literalStore{},
	}}
}

// Register 注册 scheme 对应的 Store（覆盖同名）
func (r *Resolver) Register(scheme string, s Store) {
	r.stores[scheme] = s
}

// Resolve 解析引用；空引用返回空串
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	scheme, key, ok := strings.Cut(ref, ":")
	if !ok {
		return "", fmt.Errorf("secret ref %q: missing scheme", ref)
	}
	s, ok := r.stores[scheme]
	if !ok {
		return "", fmt.Errorf("unsupported secret provider: %s", scheme)
	}
	return s.Get(ctx, key)
}
