package middleware

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"

	"toolgate/pkg/log"
)

// HeaderRequestID 请求 ID 头
const HeaderRequestID = "X-Request-ID"

type requestIDKey struct{}

// Middleware 中间件管理器
type Middleware struct {
	logger *log.Logger
}

// NewMiddleware 创建新的中间件管理器
func NewMiddleware(logger *log.Logger) *Middleware {
	if logger == nil {
		logger = log.Discard()
	}
	return &Middleware{logger: logger}
}

// RequestID 透传或生成 X-Request-ID，并放入 ctx
func (m *Middleware) RequestID() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		id := string(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.New().String()
		}
		c.Header(HeaderRequestID, id)
		c.Set(HeaderRequestID, id)
		c.Next(context.WithValue(ctx, requestIDKey{}, id))
	}
}

// AccessLog 请求结束后记录一行访问日志（health 与 metrics 记为 debug）
func (m *Middleware) AccessLog() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)

		path := string(c.Path())
		args := []any{
			"method", string(c.Method()),
			"path", path,
			"status", c.Response.StatusCode(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString(HeaderRequestID),
		}
		if path == "/api/health" || path == "/metrics" {
			m.logger.DebugContext(ctx, "http request", args...)
			return
		}
		m.logger.InfoContext(ctx, "http request", args...)
	}
}

// RequestIDFromContext 取出 RequestID 中间件放入的 ID
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
