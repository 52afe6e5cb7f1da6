package host

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolgate/internal/gate"
	gerrors "toolgate/pkg/errors"
	"toolgate/pkg/log"
)

// fakeHost 模拟 host 的 /session/{id}/message 与 /log
type fakeHost struct {
	mu   sync.Mutex
	logs []LogEntry
}

func (f *fakeHost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/session/s1/message":
		w.Header().Set("Content-Type", "application/json")
		// 故意乱序
		_, _ = w.Write([]byte(`[
			{"info":{"id":"m2","role":"assistant","time":{"created":1700000002000}},"parts":[{"type":"text","text":"two"}]},
			{"info":{"id":"m1","role":"user","time":{"created":1700000001000}},"parts":[{"type":"text","text":"one"}]},
			{"info":{"id":"m3","role":"assistant","time":{"created":1700000003000}},"parts":[{"type":"tool","tool":"bash","state":{"status":"running"}}]}
		]`))
	case r.Method == http.MethodGet && r.URL.Path == "/session/broken/message":
		http.Error(w, "boom", http.StatusInternalServerError)
	case r.Method == http.MethodPost && r.URL.Path == "/log":
		var e LogEntry
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.logs = append(f.logs, e)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeHost) entries() []LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]LogEntry(nil), f.logs...)
}

func newFakeHost(t *testing.T) (*fakeHost, *Client) {
	t.Helper()
	fh := &fakeHost{}
	srv := httptest.NewServer(fh)
	t.Cleanup(srv.Close)
	return fh, New(Options{BaseURL: srv.URL, Service: "toolgate", Timeout: time.Second})
}

func TestClient_SessionMessages(t *testing.T) {
	_, c := newFakeHost(t)
	msgs, err := c.SessionMessages(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m2", msgs[0].ID)
	assert.Equal(t, "assistant", msgs[0].Role)
	assert.Equal(t, time.UnixMilli(1700000002000), msgs[0].CreatedAt)
	require.Len(t, msgs[0].Parts, 1)
	assert.Equal(t, "two", msgs[0].Parts[0].Text)

	// 经过 FetchContext 后按时间升序，并原样保留 host 的 parts
	convo, err := gate.FetchContext(context.Background(), c, "s1", 5)
	require.NoError(t, err)
	require.Len(t, convo, 3)
	assert.Equal(t, "user", convo[0].Role)
	assert.Equal(t, `[{"type":"tool","tool":"bash","state":{"status":"running"}}]`, convo[2].Content)
}

func TestClient_SessionMessagesErrors(t *testing.T) {
	_, c := newFakeHost(t)
	_, err := c.SessionMessages(context.Background(), "missing")
	assert.True(t, errors.Is(err, gerrors.ErrSessionNotFound))

	_, err = c.SessionMessages(context.Background(), "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")

	down := New(Options{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	_, err = down.SessionMessages(context.Background(), "s1")
	assert.Error(t, err)
}

func TestClient_Log(t *testing.T) {
	fh, c := newFakeHost(t)
	require.NoError(t, c.Log(context.Background(), "warn", "policy unreachable", map[string]any{"tool": "bash"}))
	logs := fh.entries()
	require.Len(t, logs, 1)
	assert.Equal(t, LogEntry{Service: "toolgate", Level: "warn", Message: "policy unreachable", Extra: map[string]any{"tool": "bash"}}, logs[0])
}

func TestLogHandler_ForwardsRecords(t *testing.T) {
	fh, c := newFakeHost(t)
	h := NewLogHandler(c, slog.LevelInfo, 0)
	logger := log.NewLoggerWithHandler(slog.NewTextHandler(&discard{}, nil), h)

	logger.Debug("not forwarded")
	logger.Info("tool registered", "tool", "bash")
	logger.With("phase", "before").WithGroup("rpc").Error("tool gate error contained", "error", errors.New("unavailable"))
	h.Close()

	logs := fh.entries()
	require.Len(t, logs, 2)
	assert.Equal(t, "info", logs[0].Level)
	assert.Equal(t, "tool registered", logs[0].Message)
	assert.Equal(t, "bash", logs[0].Extra["tool"])
	assert.Equal(t, "toolgate", logs[0].Extra["service"])

	assert.Equal(t, "error", logs[1].Level)
	assert.Equal(t, "before", logs[1].Extra["phase"])
	assert.Equal(t, "unavailable", logs[1].Extra["rpc.error"])
}

// blockingSink 在 release 前阻塞，用于观察队列满时的丢弃
type blockingSink struct {
	release chan struct{}
}

func (b *blockingSink) Log(ctx context.Context, level, message string, extra map[string]any) error {
	<-b.release
	return nil
}

func TestLogHandler_DropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	h := NewLogHandler(sink, slog.LevelDebug, 1)
	logger := slog.New(h)
	for i := 0; i < 10; i++ {
		logger.Info("burst")
	}
	assert.Greater(t, h.Dropped(), 0)
	close(sink.release)
	h.Close()
	logger.Info("after close is ignored")
}

func TestLevelName(t *testing.T) {
	assert.Equal(t, "debug", levelName(slog.LevelDebug))
	assert.Equal(t, "info", levelName(slog.LevelInfo))
	assert.Equal(t, "warn", levelName(slog.LevelWarn))
	assert.Equal(t, "error", levelName(slog.LevelError+4))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
