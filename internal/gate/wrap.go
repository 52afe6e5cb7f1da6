package gate

import (
	"context"

	"toolgate/internal/runtime/session"
	"toolgate/internal/tool"
)

// gatedTool 在 Execute 前后接入 Gate 的工具包装
type gatedTool struct {
	tool.Tool
	gate *Gate
}

// Wrap 返回带许可检查的工具；会话 ID 取自 session.WithID 放入 ctx 的值
func Wrap(t tool.Tool, g *Gate) tool.Tool {
	return &gatedTool{Tool: t, gate: g}
}

// Execute 被拒绝时不执行内层工具，返回 DenialError
func (t *gatedTool) Execute(ctx context.Context, input map[string]any) (tool.ToolResult, error) {
	inv, err := t.gate.Before(ctx, ToolCall{
		SessionID: session.IDFromContext(ctx),
		Tool:      t.Name(),
		Args:      input,
	})
	if err != nil {
		return tool.ToolResult{Err: err.Error()}, err
	}
	res, execErr := t.Tool.Execute(ctx, input)
	if execErr != nil && res.Err == "" {
		res.Err = execErr.Error()
	}
	t.gate.After(ctx, inv, res)
	return res, execErr
}

// Unwrap 返回内层工具
func (t *gatedTool) Unwrap() tool.Tool {
	return t.Tool
}

// Middleware 供 registry.New 使用：注册的每个工具都经过 g
func Middleware(g *Gate) tool.Middleware {
	return func(t tool.Tool) tool.Tool {
		return Wrap(t, g)
	}
}
