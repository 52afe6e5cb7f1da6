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
	"time"

	"github.com/google/uuid"
)

// Session host 侧会话：对话历史的唯一持有者
type Session struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	Messages []*Message // 对话历史，顺序由 host 决定，不保证按时间排列

	mu sync.RWMutex
}

// New 创建新 Session（ID 为空时自动生成）
func New(id string) *Session {
	now := time.Now()
	if id == "" {
		id = "session-" + uuid.New().String()
	}
	return &Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddMessage 追加一条对话消息；CreatedAt 为零值时使用当前时间
func (s *Session) AddMessage(m *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdatedAt = time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.UpdatedAt
	}
	if m.ID == "" {
		m.ID = "msg-" + uuid.New().String()
	}
	s.Messages = append(s.Messages, m)
}

// AddText 追加一条纯文本消息
func (s *Session) AddText(role, text string) {
	s.AddMessage(TextMessage(role, text, time.Time{}))
}

// CopyMessages 返回 Messages 的副本（供 gate 等只读使用）
func (s *Session) CopyMessages() []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.Messages) == 0 {
		return nil
	}
	out := make([]*Message, len(s.Messages))
	for i, m := range s.Messages {
		out[i] = m.clone()
	}
	return out
}

type ctxKey struct{}

// WithID 把当前会话 ID 放进 ctx（工具执行链路使用）
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IDFromContext 取出会话 ID，不存在时返回空串
func IDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
