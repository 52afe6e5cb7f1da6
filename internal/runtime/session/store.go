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

package session

import (
	"context"
	"sync"

	gerrors "toolgate/pkg/errors"
)

// MemoryStore 进程内会话表，供嵌入式 host、示例与测试使用；实现 gate.MessageSource
type MemoryStore struct {
	mu   sync.RWMutex
	sess map[string]*Session
}

// NewMemoryStore 创建空的会话表
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sess: make(map[string]*Session)}
}

// Add 保存会话，同 ID 覆盖
func (m *MemoryStore) Add(s *Session) {
	if s == nil {
		return
	}
	m.mu.Lock()
	m.sess[s.ID] = s
	m.mu.Unlock()
}

// Session 按 ID 取会话
func (m *MemoryStore) Session(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sess[id]
	return s, ok
}

// GetOrCreate 取出会话，不存在时创建并保存
func (m *MemoryStore) GetOrCreate(_ context.Context, id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sess[id]; ok {
		return s
	}
	s := New(id)
	m.sess[s.ID] = s
	return s
}

// Delete 移除会话；之后对它的上下文拉取返回 ErrSessionNotFound
func (m *MemoryStore) Delete(id string) {
	m.mu.Lock()
	delete(m.sess, id)
	m.mu.Unlock()
}

// Len 会话数
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sess)
}

// SessionMessages 返回会话全部消息的副本；会话不存在时返回 ErrSessionNotFound
func (m *MemoryStore) SessionMessages(_ context.Context, sessionID string) ([]*Message, error) {
	s, ok := m.Session(sessionID)
	if !ok {
		return nil, gerrors.Wrapf(gerrors.ErrSessionNotFound, "session %s", sessionID)
	}
	return s.CopyMessages(), nil
}
