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

// Package registry host 侧工具表；注册时套上 middleware（如 gate），执行时只能拿到包装后的工具
package registry

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"toolgate/internal/tool"
	gerrors "toolgate/pkg/errors"
)

// Registry 并发安全的工具表
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]tool.Tool
	middleware []tool.Middleware
}

// New 创建 Registry；mw 按顺序套在工具外层，第一个在最内层
func New(mw ...tool.Middleware) *Registry {
	return &Registry{
		tools:      make(map[string]tool.Tool),
		middleware: mw,
	}
}

// Register 注册工具；同名工具后注册的覆盖先注册的
func (r *Registry) Register(t tool.Tool) error {
	if t == nil || t.Name() == "" {
		return fmt.Errorf("register tool: %w: empty name", gerrors.ErrInvalidArg)
	}
	for _, mw := range r.middleware {
		t = mw(t)
	}
	r.mu.Lock()
	r.tools[t.Name()] = t
	r.mu.Unlock()
	return nil
}

// Get 按名称获取（包装后的）工具
func (r *Registry) Get(name string) (tool.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Execute 按名称执行工具；未注册时返回 ErrNotFound
func (r *Registry) Execute(ctx context.Context, name string, input map[string]any) (tool.ToolResult, error) {
	t, ok := r.Get(name)
	if !ok {
		return tool.ToolResult{}, fmt.Errorf("tool %s: %w", name, gerrors.ErrNotFound)
	}
	return t.Execute(ctx, input)
}

// Names 已注册的工具名（排序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.tools))
}

// Descriptor 工具的对外描述
type Descriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  tool.Schema `json:"parameters"`
}

// Descriptors 返回所有工具的描述，按名称排序
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, Descriptor{Name: t.Name(), Description: t.Description(), Parameters: t.Schema()})
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Descriptor) int { return cmp.Compare(a.Name, b.Name) })
	return out
}
