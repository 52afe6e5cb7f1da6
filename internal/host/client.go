// Package host 与 host 运行时的 HTTP 协作：读取会话消息、转发诊断日志
package host

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"toolgate/internal/runtime/session"
	gerrors "toolgate/pkg/errors"
)

// DefaultTimeout host 请求默认超时
const DefaultTimeout = 5 * time.Second

// Options host 客户端选项
type Options struct {
	BaseURL string
	Timeout time.Duration
	// Service 日志转发时的 service 字段
	Service string
}

// Client host HTTP 客户端，实现 gate.MessageSource
type Client struct {
	http    *resty.Client
	service string
}

// New 创建 host 客户端
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Client{
		http: resty.New().
			SetBaseURL(opts.BaseURL).
			SetTimeout(opts.Timeout).
			SetHeader("Content-Type", "application/json"),
		service: opts.Service,
	}
}

// hostMessage host 返回的单条消息
type hostMessage struct {
	Info struct {
		ID   string `json:"id"`
		Role string `json:"role"`
		Time struct {
			Created int64 `json:"created"` // 毫秒
		} `json:"time"`
	} `json:"info"`
	Parts json.RawMessage `json:"parts"`
}

// SessionMessages GET /session/{id}/message；404 视为会话不存在
func (c *Client) SessionMessages(ctx context.Context, sessionID string) ([]*session.Message, error) {
	var out []hostMessage
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", sessionID).
		SetResult(&out).
		Get("/session/{id}/message")
	if err != nil {
		return nil, fmt.Errorf("GET session %s messages: %w", sessionID, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, gerrors.Wrapf(gerrors.ErrSessionNotFound, "session %s", sessionID)
	default:
		return nil, fmt.Errorf("GET session %s messages: %d %s", sessionID, resp.StatusCode(), resp.String())
	}

	msgs := make([]*session.Message, 0, len(out))
	for _, hm := range out {
		m := &session.Message{
			ID:        hm.Info.ID,
			Role:      hm.Info.Role,
			CreatedAt: time.UnixMilli(hm.Info.Time.Created),
			RawParts:  hm.Parts,
			Parts:     session.DecodeParts(hm.Parts),
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// LogEntry POST /log 的请求体
type LogEntry struct {
	Service string         `json:"service"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// Log 写一条日志到 host；level 为 debug|info|warn|error
func (c *Client) Log(ctx context.Context, level, message string, extra map[string]any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(LogEntry{Service: c.service, Level: level, Message: message, Extra: extra}).
		Post("/log")
	if err != nil {
		return fmt.Errorf("POST /log: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("POST /log: %d %s", resp.StatusCode(), resp.String())
	}
	return nil
}
