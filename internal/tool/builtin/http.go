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
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"toolgate/internal/tool"
)

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true, "HEAD": true,
}

// HTTPTool 实现 http.request
type HTTPTool struct {
	client *resty.Client
}

// HTTPOption HTTPTool 选项
type HTTPOption func(*HTTPTool)

// WithTimeout 设置请求超时（默认 30s）
func WithTimeout(d time.Duration) HTTPOption {
	return func(t *HTTPTool) { t.client.SetTimeout(d) }
}

// NewHTTPTool 创建 http.request 工具
func NewHTTPTool(opts ...HTTPOption) *HTTPTool {
	t := &HTTPTool{client: resty.New().SetTimeout(30 * time.Second)}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Name 实现 tool.Tool
func (t *HTTPTool) Name() string { return "http.request" }

// Description 实现 tool.Tool
func (t *HTTPTool) Description() string {
	return "发送 HTTP 请求。传入 method、url，可选 body、headers。"
}

// Schema 实现 tool.Tool
func (t *HTTPTool) Schema() tool.Schema {
	return tool.Schema{
		Type:        "object",
		Description: "HTTP 请求参数",
		Properties: map[string]tool.SchemaProperty{
			"method":  {Type: "string", Description: "GET, POST, PUT, DELETE 等"},
			"url":     {Type: "string", Description: "请求 URL（仅 http/https）"},
			"body":    {Type: "string", Description: "请求体（可选）"},
			"headers": {Type: "object", Description: "请求头（可选）"},
		},
		Required: []string{"method", "url"},
	}
}

// Execute 实现 tool.Tool；参数错误与请求失败放在 ToolResult.Err 中
func (t *HTTPTool) Execute(ctx context.Context, input map[string]any) (tool.ToolResult, error) {
	method, _ := input["method"].(string)
	urlStr, _ := input["url"].(string)
	if method == "" || urlStr == "" {
		return tool.ToolResult{Err: "method and url are required"}, nil
	}
	method = strings.ToUpper(method)
	if !allowedMethods[method] {
		return tool.ToolResult{Err: "unsupported HTTP method: " + method}, nil
	}
	u, err := url.Parse(urlStr)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return tool.ToolResult{Err: "unsupported URL scheme: only http and https are allowed"}, nil
	}

	req := t.client.R().SetContext(ctx)
	if b, ok := input["body"].(string); ok && b != "" {
		req.SetBody(b)
	}
	if h, ok := input["headers"].(map[string]any); ok {
		for k, v := range h {
			if s, ok := v.(string); ok {
				req.SetHeader(k, s)
			}
		}
	}
	resp, err := req.Execute(method, u.String())
	if err != nil {
		return tool.ToolResult{Err: err.Error()}, nil
	}
	out := map[string]any{
		"status_code": resp.StatusCode(),
		"body":        resp.String(),
	}
	raw, _ := json.Marshal(out)
	return tool.ToolResult{Content: string(raw)}, nil
}
