package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"

	"toolgate/internal/api/http/middleware"
	"toolgate/internal/gate"
	"toolgate/internal/policy"
	"toolgate/internal/runtime/session"
	"toolgate/internal/storage/cache"
	gerrors "toolgate/pkg/errors"
)

// stubPolicy 按工具名应答：deny 拒绝，silent 无决策，其余放行
type stubPolicy struct {
	mu      sync.Mutex
	deny    map[string]bool
	silent  map[string]bool
	pingErr error
	dids    []policy.DidCallRequest
}

func (s *stubPolicy) RegisterTool(context.Context, *policy.RegisterToolRequest) error { return nil }

func (s *stubPolicy) RequestPermission(_ context.Context, req *policy.ToolCallPayload) (*policy.PermissionResponse, error) {
	switch {
	case s.silent[req.ToolName]:
		return &policy.PermissionResponse{}, nil
	case s.deny[req.ToolName]:
		return &policy.PermissionResponse{Permitted: policy.Bool(false), Reason: "blocked"}, nil
	}
	return &policy.PermissionResponse{Permitted: policy.Bool(true)}, nil
}

func (s *stubPolicy) NotifyWillCall(context.Context, *policy.ToolCallPayload) error { return nil }

func (s *stubPolicy) NotifyDidCall(_ context.Context, req *policy.DidCallRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dids = append(s.dids, *req)
	return nil
}

func (s *stubPolicy) Ping(context.Context) error { return s.pingErr }

func (s *stubPolicy) didCalls() []policy.DidCallRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]policy.DidCallRequest(nil), s.dids...)
}

func newTestServer(t *testing.T, stub *stubPolicy) *server.Hertz {
	t.Helper()
	store := session.NewMemoryStore()
	store.GetOrCreate(context.Background(), "s1").AddText(session.RoleUser, "please list files")
	g, err := gate.New(gate.Options{Application: "sidecar-test", Client: stub, Messages: store})
	if err != nil {
		t.Fatalf("gate.New: %v", err)
	}
	handler := NewHandler(g, cache.NewMemoryStore(), time.Minute, stub, nil)
	router := NewRouter(handler, middleware.NewMiddleware(nil))
	router.EnableMetrics = true
	h := server.Default(server.WithHostPorts(":0"))
	router.Register(h)
	return h
}

func post(h *server.Hertz, path, body string) (int, map[string]any) {
	w := ut.PerformRequest(h.Engine, "POST", path,
		&ut.Body{Body: bytes.NewReader([]byte(body)), Len: len(body)},
		ut.Header{Key: "Content-Type", Value: "application/json"})
	resp := w.Result()
	var out map[string]any
	_ = json.Unmarshal(resp.Body(), &out)
	return resp.StatusCode(), out
}

func TestBeforeTool_Permitted(t *testing.T) {
	h := newTestServer(t, &stubPolicy{})
	code, out := post(h, "/api/tools/before", `{"session_id":"s1","tool":"bash","args":{"command":"ls"}}`)
	if code != 200 {
		t.Fatalf("status: got %d, body %v", code, out)
	}
	if out["allowed"] != true {
		t.Errorf("allowed: %v", out)
	}
	if id, _ := out["call_id"].(string); !strings.HasPrefix(id, "call-") {
		t.Errorf("generated call_id: %v", out["call_id"])
	}
}

func TestBeforeTool_Denied(t *testing.T) {
	h := newTestServer(t, &stubPolicy{deny: map[string]bool{"rm": true}, silent: map[string]bool{"mystery": true}})

	code, out := post(h, "/api/tools/before", `{"session_id":"s1","tool":"rm","args":{"path":"/"}}`)
	if code != 403 || out["allowed"] != false || out["failed_closed"] != false {
		t.Errorf("explicit denial: %d %v", code, out)
	}
	if reason, _ := out["reason"].(string); !strings.Contains(reason, "blocked") {
		t.Errorf("reason: %v", out["reason"])
	}

	code, out = post(h, "/api/tools/before", `{"session_id":"s1","tool":"mystery"}`)
	if code != 403 || out["failed_closed"] != true {
		t.Errorf("missing decision must fail closed: %d %v", code, out)
	}
}

func TestBeforeTool_BadRequest(t *testing.T) {
	h := newTestServer(t, &stubPolicy{})
	if code, _ := post(h, "/api/tools/before", `{"session_id":"s1"}`); code != 400 {
		t.Errorf("missing tool: got %d", code)
	}
	if code, _ := post(h, "/api/tools/before", `{not json`); code != 400 {
		t.Errorf("malformed body: got %d", code)
	}
}

func TestAfterTool_UsesPendingSnapshot(t *testing.T) {
	stub := &stubPolicy{}
	h := newTestServer(t, stub)

	_, out := post(h, "/api/tools/before", `{"session_id":"s1","call_id":"c-1","tool":"write","args":{"path":"/tmp/a","n":2}}`)
	if out["call_id"] != "c-1" {
		t.Fatalf("call_id should be kept: %v", out)
	}
	code, out := post(h, "/api/tools/after", `{"session_id":"s1","call_id":"c-1","tool":"write","args":{"path":"/changed"},"result":{"ok":true}}`)
	if code != 202 || out["accepted"] != true {
		t.Fatalf("after: %d %v", code, out)
	}

	dids := stub.didCalls()
	if len(dids) != 1 {
		t.Fatalf("did calls: %d", len(dids))
	}
	if dids[0].Args["path"] != "/tmp/a" || dids[0].Args["n"] != "2" {
		t.Errorf("did-call must carry the invocation-time args: %v", dids[0].Args)
	}
	if dids[0].Result != `{"ok":true}` {
		t.Errorf("result: %s", dids[0].Result)
	}
	if len(dids[0].Context) != 1 {
		t.Errorf("context: %v", dids[0].Context)
	}

	// 快照只能取一次，第二次回退到请求体中的参数
	post(h, "/api/tools/after", `{"session_id":"s1","call_id":"c-1","tool":"write","args":{"path":"/changed"}}`)
	dids = stub.didCalls()
	if len(dids) != 2 || dids[1].Args["path"] != "/changed" || dids[1].Result != "null" {
		t.Errorf("fallback to body args: %+v", dids)
	}
}

func TestAfterTool_UnknownCallWithoutTool(t *testing.T) {
	h := newTestServer(t, &stubPolicy{})
	if code, _ := post(h, "/api/tools/after", `{"session_id":"s1","call_id":"nope"}`); code != 400 {
		t.Errorf("got %d, want 400", code)
	}
}

func TestHealthCheck(t *testing.T) {
	stub := &stubPolicy{}
	h := newTestServer(t, stub)
	w := ut.PerformRequest(h.Engine, "GET", "/api/health", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	if resp.StatusCode() != 200 || !bytes.Contains(resp.Body(), []byte(`"policy":"serving"`)) {
		t.Errorf("health: %d %s", resp.StatusCode(), resp.Body())
	}
	if len(resp.Header.Peek(middleware.HeaderRequestID)) == 0 {
		t.Error("request id header missing")
	}

	stub.pingErr = gerrors.Mark(errors.New("connection refused"), gerrors.ErrTransport)
	w = ut.PerformRequest(h.Engine, "GET", "/api/health", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if !bytes.Contains(w.Result().Body(), []byte(`"policy":"unreachable"`)) {
		t.Errorf("health with policy down: %s", w.Result().Body())
	}
}

func TestMetrics(t *testing.T) {
	h := newTestServer(t, &stubPolicy{deny: map[string]bool{"rm": true}})
	post(h, "/api/tools/before", `{"session_id":"s1","tool":"rm"}`)
	w := ut.PerformRequest(h.Engine, "GET", "/metrics", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("metrics status: %d", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte("toolgate_decisions_total")) {
		t.Errorf("metrics body missing decisions counter")
	}
}

func TestRouter_OuterMiddlewareRunsFirst(t *testing.T) {
	store := session.NewMemoryStore()
	g, err := gate.New(gate.Options{Application: "sidecar-test", Client: &stubPolicy{}, Messages: store})
	if err != nil {
		t.Fatalf("gate.New: %v", err)
	}
	router := NewRouter(NewHandler(g, cache.NewMemoryStore(), time.Minute, &stubPolicy{}, nil), middleware.NewMiddleware(nil))
	var order []string
	router.Use(func(ctx context.Context, c *app.RequestContext) {
		order = append(order, "outer")
		c.Next(ctx)
	})
	h := server.Default(server.WithHostPorts(":0"))
	router.Register(h)

	w := ut.PerformRequest(h.Engine, "GET", "/api/health", nil)
	if w.Result().StatusCode() != 200 {
		t.Fatalf("health: %d", w.Result().StatusCode())
	}
	if len(order) != 1 {
		t.Errorf("outer middleware calls: %v", order)
	}
	if id := string(w.Result().Header.Peek("X-Request-ID")); id == "" {
		t.Error("request id middleware should still run")
	}
}
