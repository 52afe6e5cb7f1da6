package host

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// LogSink 日志接收方（*Client 实现）
type LogSink interface {
	Log(ctx context.Context, level, message string, extra map[string]any) error
}

// LogHandler 把 slog 记录异步转发给 host；队列满时丢弃，不阻塞调用方
type LogHandler struct {
	level slog.Leveler
	attrs []slog.Attr
	group string
	q     *logQueue
}

type logQueue struct {
	sink    LogSink
	timeout time.Duration
	ch      chan LogEntry
	done    chan struct{}
	once    sync.Once

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewLogHandler 创建转发 handler；buffer<=0 时为 256
func NewLogHandler(sink LogSink, level slog.Leveler, buffer int) *LogHandler {
	if buffer <= 0 {
		buffer = 256
	}
	if level == nil {
		level = slog.LevelInfo
	}
	q := &logQueue{
		sink:    sink,
		timeout: 2 * time.Second,
		ch:      make(chan LogEntry, buffer),
		done:    make(chan struct{}),
	}
	go q.run()
	return &LogHandler{level: level, q: q}
}

func (q *logQueue) run() {
	defer close(q.done)
	for e := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		_ = q.sink.Log(ctx, e.Level, e.Message, e.Extra)
		cancel()
	}
}

func (q *logQueue) push(e LogEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- e:
	default:
		q.dropped++
	}
}

// Enabled 实现 slog.Handler
func (h *LogHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

// Handle 实现 slog.Handler
func (h *LogHandler) Handle(_ context.Context, r slog.Record) error {
	extra := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		addAttr(extra, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(extra, h.group, a)
		return true
	})
	h.q.push(LogEntry{Level: levelName(r.Level), Message: r.Message, Extra: extra})
	return nil
}

// WithAttrs 实现 slog.Handler
func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

// WithGroup 实现 slog.Handler；分组展开为 "group.key"
func (h *LogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if h.group != "" {
		name = h.group + "." + name
	}
	next.group = name
	return &next
}

// Close 停止接收新记录并等待队列发送完毕
func (h *LogHandler) Close() {
	h.q.once.Do(func() {
		h.q.mu.Lock()
		h.q.closed = true
		close(h.q.ch)
		h.q.mu.Unlock()
	})
	<-h.q.done
}

// Dropped 因队列满被丢弃的记录数
func (h *LogHandler) Dropped() int {
	h.q.mu.Lock()
	defer h.q.mu.Unlock()
	return h.q.dropped
}

func addAttr(dst map[string]any, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	switch {
	case group != "" && key == "":
		key = group
	case group != "":
		key = group + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			addAttr(dst, key, ga)
		}
		return
	}
	v := a.Value.Any()
	if err, ok := v.(error); ok {
		v = err.Error()
	}
	dst[key] = v
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warn"
	case l >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
