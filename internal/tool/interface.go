package tool

import (
	"context"
)

// Schema 表示工具的 JSON Schema（供 LLM function-calling 使用）
type Schema struct {
	Type        string                    `json:"type,omitempty"`
	Description string                    `json:"description,omitempty"`
	Properties  map[string]SchemaProperty `json:"properties,omitempty"`
	Required    []string                  `json:"required,omitempty"`
}

// SchemaProperty 表示 Schema 中单个属性的描述
type SchemaProperty struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// ToolResult 工具执行结果
type ToolResult struct {
	Content string `json:"content"`
	Err     string `json:"error,omitempty"`
}

// Tool host 侧可执行的工具
type Tool interface {
	Name() string
	Description() string
	Schema() Schema
	Execute(ctx context.Context, input map[string]any) (ToolResult, error)
}

// Middleware 包装工具（如许可检查），注册时按顺序套在外层
type Middleware func(Tool) Tool

// Unwrapper 被包装过的工具返回内层工具
type Unwrapper interface {
	Unwrap() Tool
}

// Innermost 逐层 Unwrap 到最内层工具
func Innermost(t Tool) Tool {
	for {
		u, ok := t.(Unwrapper)
		if !ok {
			return t
		}
		t = u.Unwrap()
	}
}
