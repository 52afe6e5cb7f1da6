package gate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"toolgate/internal/policy"
	"toolgate/internal/runtime/session"
	gerrors "toolgate/pkg/errors"
	"toolgate/pkg/log"
)

var errConnRefused = gerrors.Mark(errors.New("connection refused"), gerrors.ErrTransport)

// fakePolicy 记录调用的 PolicyClient
type fakePolicy struct {
	mu sync.Mutex

	resp          *policy.PermissionResponse
	registerErr   error
	permissionErr error
	willErr       error
	didErr        error
	registerDelay time.Duration
	panicOnPerm   bool

	registers map[string]int
	perms     []policy.ToolCallPayload
	wills     []policy.ToolCallPayload
	dids      []policy.DidCallRequest
}

func newFakePolicy(permitted *bool) *fakePolicy {
	return &fakePolicy{
		resp:      &policy.PermissionResponse{Permitted: permitted},
		registers: make(map[string]int),
	}
}

func (f *fakePolicy) RegisterTool(_ context.Context, req *policy.RegisterToolRequest) error {
	if f.registerDelay > 0 {
		time.Sleep(f.registerDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registers[req.ToolName]++
	return f.registerErr
}

func (f *fakePolicy) RequestPermission(_ context.Context, req *policy.ToolCallPayload) (*policy.PermissionResponse, error) {
	if f.panicOnPerm {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perms = append(f.perms, *req)
	if f.permissionErr != nil {
		return nil, f.permissionErr
	}
	return f.resp, nil
}

func (f *fakePolicy) NotifyWillCall(_ context.Context, req *policy.ToolCallPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wills = append(f.wills, *req)
	return f.willErr
}

func (f *fakePolicy) NotifyDidCall(_ context.Context, req *policy.DidCallRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dids = append(f.dids, *req)
	return f.didErr
}

func (f *fakePolicy) registrations(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registers[name]
}

// failingSource host 无法提供消息
type failingSource struct{}

func (failingSource) SessionMessages(context.Context, string) ([]*session.Message, error) {
	return nil, fmt.Errorf("host offline")
}

// syncBuffer 并发安全的日志缓冲
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLogger() (*log.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return log.NewLoggerWithHandler(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// seededStore 含一个会话，消息时间戳按 minutes 给定（插入顺序即给定顺序）
func seededStore(id string, minutes ...int) *session.MemoryStore {
	store := session.NewMemoryStore()
	s := session.New(id)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, m := range minutes {
		s.AddMessage(session.TextMessage(session.RoleUser, fmt.Sprintf("m%d", m), base.Add(time.Duration(m)*time.Minute)))
	}
	store.Add(s)
	return store
}
