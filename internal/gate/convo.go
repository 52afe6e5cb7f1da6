package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"toolgate/internal/policy"
	"toolgate/internal/runtime/session"
	gerrors "toolgate/pkg/errors"
)

// DefaultContextWindow 发给 policy 服务的上下文消息条数
const DefaultContextWindow = 5

// MessageSource host 协作方：返回会话的全部消息（顺序不保证）
type MessageSource interface {
	SessionMessages(ctx context.Context, sessionID string) ([]*session.Message, error)
}

// FetchContext 取会话最近 n 条消息，按创建时间升序（最新在最后）。
// host 出错时返回 ErrContextFetch，不会退化为空上下文。
func FetchContext(ctx context.Context, src MessageSource, sessionID string, n int) ([]policy.ConversationMessage, error) {
	msgs, err := src.SessionMessages(ctx, sessionID)
	if err != nil {
		return nil, gerrors.Mark(fmt.Errorf("fetch messages of session %q: %w", sessionID, err), gerrors.ErrContextFetch)
	}
	sorted := make([]*session.Message, 0, len(msgs))
	for _, m := range msgs {
		if m != nil {
			sorted = append(sorted, m)
		}
	}
	slices.SortStableFunc(sorted, func(a, b *session.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if n < 0 {
		n = 0
	}
	if len(sorted) > n {
		sorted = sorted[len(sorted)-n:]
	}
	out := make([]policy.ConversationMessage, 0, len(sorted))
	for _, m := range sorted {
		out = append(out, policy.ConversationMessage{Role: m.Role, Content: serializeParts(m)})
	}
	return out, nil
}

func serializeParts(m *session.Message) string {
	if len(m.RawParts) > 0 {
		var buf bytes.Buffer
		if err := json.Compact(&buf, m.RawParts); err == nil {
			return buf.String()
		}
	}
	parts := m.Parts
	if parts == nil {
		parts = []session.Part{}
	}
	data, err := json.Marshal(parts)
	if err != nil {
		return fmt.Sprintf("%v", parts)
	}
	return string(data)
}
