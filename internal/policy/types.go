package policy

// ConversationMessage 发给 policy 服务的一条上下文消息
type ConversationMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RegisterToolRequest 工具注册（幂等）
type RegisterToolRequest struct {
	Application string            `json:"application"`
	ToolName    string            `json:"tool_name"`
	ArgSchema   map[string]string `json:"arg_schema"`
}

// Ack 通用确认
type Ack struct {
	OK bool `json:"ok,omitempty"`
}

// ToolCallPayload 许可请求与 will-call 通知共用的载荷
type ToolCallPayload struct {
	Application string                `json:"application"`
	ToolName    string                `json:"tool_name"`
	Args        map[string]string     `json:"args"`
	Context     []ConversationMessage `json:"context"`
}

// PermissionResponse 许可结果；Permitted 缺失表示没有有效决策
type PermissionResponse struct {
	Permitted *bool  `json:"permitted,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// DidCallRequest 执行后通知
type DidCallRequest struct {
	ToolCallPayload
	Result string `json:"result"`
}

// Bool 返回 b 的指针（构造 PermissionResponse 用）
func Bool(b bool) *bool {
	return &b
}
