package http

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"

	"toolgate/internal/api/http/middleware"
)

// Router sidecar 路由
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
	outer      []app.HandlerFunc
	// EnableMetrics 是否注册 /metrics
	EnableMetrics bool
}

// NewRouter 创建路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{handler: handler, middleware: mw}
}

// Use 追加在 request id/access log 之前执行的中间件（如 tracing）；须在 Build/Register 之前调用
func (r *Router) Use(mw ...app.HandlerFunc) {
	r.outer = append(r.outer, mw...)
}

// Build 创建 Hertz 实例并注册路由；opts 追加在地址之后（如 tracing 的 server option）
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	h := server.Default(append([]config.Option{server.WithHostPorts(addr)}, opts...)...)
	r.Register(h)
	return h
}

// Register 在已有 Hertz 实例上注册路由（测试使用）
func (r *Router) Register(h *server.Hertz) {
	if len(r.outer) > 0 {
		h.Use(r.outer...)
	}
	if r.middleware != nil {
		h.Use(r.middleware.RequestID(), r.middleware.AccessLog())
	}
	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)

	tools := api.Group("/tools")
	tools.POST("/before", r.handler.BeforeTool)
	tools.POST("/after", r.handler.AfterTool)

	if r.EnableMetrics {
		h.GET("/metrics", r.handler.Metrics)
	}
}
