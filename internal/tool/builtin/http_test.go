// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package builtin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTool_Metadata(t *testing.T) {
	tool := NewHTTPTool()
	assert.Equal(t, "http.request", tool.Name())
	assert.NotEmpty(t, tool.Description())
	schema := tool.Schema()
	assert.Equal(t, "object", schema.Type)
	assert.Contains(t, schema.Properties, "method")
	assert.Contains(t, schema.Properties, "url")
}

func TestHTTPTool_Validation(t *testing.T) {
	tool := NewHTTPTool()
	tests := []struct {
		name   string
		input  map[string]any
		errMsg string
	}{
		{"missing method and url", map[string]any{}, "method and url are required"},
		{"missing url", map[string]any{"method": "GET"}, "method and url are required"},
		{"invalid method", map[string]any{"method": "BREW", "url": "http://example.com"}, "unsupported HTTP method"},
		{"file scheme", map[string]any{"method": "GET", "url": "file:///etc/passwd"}, "unsupported URL scheme"},
		{"javascript scheme", map[string]any{"method": "GET", "url": "javascript:alert(1)"}, "unsupported URL scheme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tool.Execute(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Contains(t, result.Err, tt.errMsg)
		})
	}
}

func TestHTTPTool_PostWithBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "test data")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":"created"}`))
	}))
	defer server.Close()

	result, err := NewHTTPTool().Execute(context.Background(), map[string]any{
		"method":  "post",
		"url":     server.URL,
		"body":    `{"data":"test data"}`,
		"headers": map[string]any{"Content-Type": "application/json"},
	})
	require.NoError(t, err)
	require.Empty(t, result.Err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.Content), &resp))
	assert.Equal(t, float64(http.StatusCreated), resp["status_code"])
	assert.Contains(t, resp["body"], "created")
}

func TestHTTPTool_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	result, err := NewHTTPTool(WithTimeout(100*time.Millisecond)).Execute(context.Background(), map[string]any{
		"method": "GET",
		"url":    server.URL,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Err)
}

func TestEchoTool(t *testing.T) {
	tool := NewEchoTool()
	res, err := tool.Execute(context.Background(), map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Content)

	res, err = tool.Execute(context.Background(), map[string]any{"a": 1, "b": []any{"x"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":["x"]}`, res.Content)
}
