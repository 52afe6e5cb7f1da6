package builtin

import (
	"context"
	"encoding/json"

	"toolgate/internal/tool"
)

// EchoTool 原样返回输入（联调 gate 与 policy 服务时使用）
type EchoTool struct{}

// NewEchoTool 创建 echo 工具
func NewEchoTool() *EchoTool { return &EchoTool{} }

// Name 实现 tool.Tool
func (EchoTool) Name() string { return "echo" }

// Description 实现 tool.Tool
func (EchoTool) Description() string { return "原样返回输入参数" }

// Schema 实现 tool.Tool
func (EchoTool) Schema() tool.Schema {
	return tool.Schema{
		Type: "object",
		Properties: map[string]tool.SchemaProperty{
			"text": {Type: "string", Description: "要返回的文本"},
		},
	}
}

// Execute 实现 tool.Tool
func (EchoTool) Execute(_ context.Context, input map[string]any) (tool.ToolResult, error) {
	if s, ok := input["text"].(string); ok && len(input) == 1 {
		return tool.ToolResult{Content: s}, nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return tool.ToolResult{Err: err.Error()}, nil
	}
	return tool.ToolResult{Content: string(raw)}, nil
}
