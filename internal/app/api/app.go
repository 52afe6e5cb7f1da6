// Package api sidecar 应用：装配 Hertz Router、Handler、Middleware
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"toolgate/internal/api/http"
	"toolgate/internal/api/http/middleware"
	"toolgate/internal/app"
	"toolgate/internal/storage/cache"
	"toolgate/pkg/log"
)

// App sidecar 应用
type App struct {
	bootstrap *app.Bootstrap
	router    *http.Router
	pending   cache.Store
	hertz     *server.Hertz
	addr      string
	logFile   *os.File
	stopPurge chan struct{}
	stopOnce  sync.Once
}

// NewApp 创建 sidecar 应用（由 cmd/toolgate 调用）；Hertz 实例在此构建，Run 与 Shutdown 只读取
func NewApp(b *app.Bootstrap, addr string) (*App, error) {
	cfg := b.Config
	a := &App{bootstrap: b, addr: addr, stopPurge: make(chan struct{})}

	var output io.Writer = os.Stdout
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("打开日志文件失败: %w", err)
		}
		a.logFile = f
		output = f
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(log.ParseLevel(cfg.Log.Level))
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))

	pending, err := cache.NewCache(cfg.Registry, b.Redis)
	if err != nil {
		a.closeLogFile()
		return nil, fmt.Errorf("初始化调用快照存储失败: %w", err)
	}
	a.pending = pending
	handler := http.NewHandler(b.Gate, pending, cfg.PendingTTL(), b.Policy, b.Logger)
	a.router = http.NewRouter(handler, middleware.NewMiddleware(b.Logger))
	a.router.EnableMetrics = cfg.Monitoring.Prometheus.Enable

	// 可选：启用链路追踪（tracer provider 由 Bootstrap 初始化）
	if cfg.Monitoring.Tracing.Enable {
		tracerOpt, tcfg := hertztracing.NewServerTracer()
		a.router.Use(hertztracing.ServerMiddleware(tcfg))
		a.hertz = a.router.Build(addr, tracerOpt)
		b.Logger.Info("链路追踪已启用", "endpoint", cfg.Monitoring.Tracing.ExportEndpoint)
	} else {
		a.hertz = a.router.Build(addr)
	}
	return a, nil
}

// Run 启动 HTTP 服务（阻塞）
func (a *App) Run() error {
	if mem, ok := a.pending.(*cache.MemoryStore); ok {
		go a.purgeLoop(mem, a.bootstrap.Config.PendingTTL())
	}
	a.bootstrap.Logger.Info("sidecar listening", "addr", a.addr)
	return a.hertz.Run()
}

// purgeLoop 定期清理过期的内存快照
func (a *App) purgeLoop(mem *cache.MemoryStore, ttl time.Duration) {
	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := mem.Purge(); n > 0 {
				a.bootstrap.Logger.Debug("purged expired invocations", "count", n)
			}
		case <-a.stopPurge:
			return
		}
	}
}

// Shutdown 优雅关闭（传入 ctx 以支持超时，如 cmd 层 WithTimeout）。
// HTTP 服务关闭失败时仍会释放快照存储与 Bootstrap 持有的连接。
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() { close(a.stopPurge) })
	var errs []error
	if err := a.hertz.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("关闭 HTTP 服务失败: %w", err))
	}
	errs = append(errs, a.pending.Close(), a.bootstrap.Close(ctx))
	a.closeLogFile()
	return errors.Join(errs...)
}

func (a *App) closeLogFile() {
	if a.logFile != nil {
		_ = a.logFile.Close()
		a.logFile = nil
	}
}
