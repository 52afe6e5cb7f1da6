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

package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gerrors "toolgate/pkg/errors"
)

// envStore key 为环境变量名；未设置与空值都视为不存在
type envStore struct {
	lookup func(string) (string, bool)
}

// NewEnvStore 读取进程环境变量
func NewEnvStore() Store {
	return envStore{lookup: os.LookupEnv}
}

func (s envStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := s.lookup(key); ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("env %s not set: %w", key, gerrors.ErrNotFound)
}

// fileStore key 为文件路径（如挂载的 Kubernetes secret），返回去掉首尾空白的内容
type fileStore struct{}

// NewFileStore 读取 secret 文件
func NewFileStore() Store {
	return fileStore{}
}

func (fileStore) Get(_ context.Context, key string) (string, error) {
	data, err := os.ReadFile(filepath.Clean(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("secret file %s: %w", key, gerrors.ErrNotFound)
		}
		return "", fmt.Errorf("read secret file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// StaticStore 固定的 key→value 表，用于测试与本地开发
type StaticStore map[string]string

// Get 实现 Store
func (s StaticStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := s[key]; ok {
		return v, nil
	}
	return "", fmt.Errorf("secret %s: %w", key, gerrors.ErrNotFound)
}

type literalStore struct{}

func (literalStore) Get(_ context.Context, key string) (string, error) {
	return key, nil
}
