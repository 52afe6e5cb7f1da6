package session

import (
	"encoding/json"
	"time"
)

// 常见角色（host 可以定义更多）
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Part 消息中的一个结构化片段（text / tool / file ...），对 gate 来说是不透明的
type Part struct {
	Type string         `json:"type"`
	Text string         `json:"text,omitempty"`
	Tool string         `json:"tool,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// Message 对话消息（host 所有，gate 只读）
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Parts     []Part    `json:"parts"`
	CreatedAt time.Time `json:"created_at"`

	// RawParts host 提供的原始 parts JSON；非空时作为上下文内容原样转发
	RawParts json.RawMessage `json:"-"`
}

// TextMessage 创建只含一个 text part 的消息
func TextMessage(role, text string, at time.Time) *Message {
	return &Message{Role: role, Parts: []Part{{Type: "text", Text: text}}, CreatedAt: at}
}

// DecodeParts 尽力解析 host 的 parts JSON；结构不符时返回 nil，原始 JSON 仍由 RawParts 转发
func DecodeParts(raw []byte) []Part {
	if len(raw) == 0 {
		return nil
	}
	var parts []Part
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil
	}
	return parts
}

func (m *Message) clone() *Message {
	out := &Message{ID: m.ID, Role: m.Role, CreatedAt: m.CreatedAt}
	if len(m.RawParts) > 0 {
		out.RawParts = append(json.RawMessage(nil), m.RawParts...)
	}
	if len(m.Parts) > 0 {
		out.Parts = make([]Part, len(m.Parts))
		copy(out.Parts, m.Parts)
	}
	return out
}
