package log

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.log")
	l, err := NewLogger(&Config{Level: "debug", Format: "text", File: path})
	require.NoError(t, err)
	l.Debug("hello", "k", "v")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "service=toolgate")
}

func TestNewLoggerWithHandler_Fanout(t *testing.T) {
	var a, b bytes.Buffer
	ha := slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo})
	hb := slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError})
	l := NewLoggerWithHandler(ha, hb)

	l.Info("info only")
	l.Error("both")

	assert.Contains(t, a.String(), "info only")
	assert.Contains(t, a.String(), "both")
	assert.NotContains(t, b.String(), "info only")
	assert.Contains(t, b.String(), "both")
}
