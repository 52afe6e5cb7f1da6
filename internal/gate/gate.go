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

// Package gate 工具调用拦截：执行前向远端 policy 服务请求许可，执行后上报结果。
//
// 只有显式拒绝（含 fail-closed 转换出的拒绝）会以 *errors.DenialError 返回给 host；
// 注册、上下文、通知等其余失败一律记录日志与指标后吞掉。
package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"toolgate/internal/policy"
	gerrors "toolgate/pkg/errors"
	"toolgate/pkg/log"
	"toolgate/pkg/metrics"
	"toolgate/pkg/tracing"
)

// PolicyClient 远端 policy 服务（*policy.Client 实现）
type PolicyClient interface {
	RegisterTool(ctx context.Context, req *policy.RegisterToolRequest) error
	RequestPermission(ctx context.Context, req *policy.ToolCallPayload) (*policy.PermissionResponse, error)
	NotifyWillCall(ctx context.Context, req *policy.ToolCallPayload) error
	NotifyDidCall(ctx context.Context, req *policy.DidCallRequest) error
}

// ContextErrorPolicy Before 阶段拉取对话上下文失败时的处理
type ContextErrorPolicy string

const (
	// ContextEmpty 以空上下文继续请求许可（默认）
	ContextEmpty ContextErrorPolicy = "empty"
	// ContextDeny 直接拒绝
	ContextDeny ContextErrorPolicy = "deny"
	// ContextBypass 跳过远端许可与通知，直接放行
	ContextBypass ContextErrorPolicy = "bypass"
)

// 阶段名（日志、指标与 span 使用）
const (
	PhaseBefore = "before"
	PhaseAfter  = "after"
)

// Options Gate 配置
type Options struct {
	// Application 附在每次远端调用上的应用标识
	Application string
	Client      PolicyClient
	Messages    MessageSource
	// Known 已注册工具集合，nil 时使用进程内集合
	Known       KnownTools
	Logger      *log.Logger

	FailPolicy     FailPolicy
	ContextWindow  int // <=0 时为 DefaultContextWindow
	OnContextError ContextErrorPolicy
}

// ToolCall host 发起的一次工具调用
type ToolCall struct {
	SessionID string
	CallID    string // 为空时自动生成
	Tool      string
	Args      map[string]any
}

// Invocation Before 返回的调用快照，After 使用其中的参数上报结果
type Invocation struct {
	SessionID string            `json:"session_id"`
	CallID    string            `json:"call_id"`
	Tool      string            `json:"tool"`
	Args      map[string]string `json:"args"` // Before 时刻的规范化参数，工具修改原始参数不影响这里
	StartedAt time.Time         `json:"started_at"`
	Decision  Decision          `json:"-"`
}

// NewInvocation 由 ToolCall 构造快照（没有经过 Before 的 After 上报使用）
func NewInvocation(call ToolCall) *Invocation {
	id := call.CallID
	if id == "" {
		id = "call-" + uuid.New().String()
	}
	return &Invocation{
		SessionID: call.SessionID,
		CallID:    id,
		Tool:      call.Tool,
		Args:      NormalizeArgs(call.Args),
		StartedAt: time.Now(),
	}
}

// Gate 拦截器；可被多个 goroutine 并发使用
type Gate struct {
	app      string
	client   PolicyClient
	messages MessageSource
	logger   *log.Logger
	reg      *registrar

	failPolicy FailPolicy
	window     int
	onCtxErr   ContextErrorPolicy
}

// New 创建 Gate
func New(opts Options) (*Gate, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("gate: policy client is required: %w", gerrors.ErrInvalidArg)
	}
	if opts.Messages == nil {
		return nil, fmt.Errorf("gate: message source is required: %w", gerrors.ErrInvalidArg)
	}
	if opts.Application == "" {
		return nil, fmt.Errorf("gate: application is required: %w", gerrors.ErrInvalidArg)
	}
	switch opts.OnContextError {
	case "":
		opts.OnContextError = ContextEmpty
	case ContextEmpty, ContextDeny, ContextBypass:
	default:
		return nil, fmt.Errorf("gate: unknown context error policy %q: %w", opts.OnContextError, gerrors.ErrInvalidArg)
	}
	if opts.Known == nil {
		opts.Known = NewMemoryKnownTools()
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = DefaultContextWindow
	}
	return &Gate{
		app:      opts.Application,
		client:   opts.Client,
		messages: opts.Messages,
		logger:   opts.Logger,
		reg: &registrar{
			application: opts.Application,
			client:      opts.Client,
			known:       opts.Known,
		},
		failPolicy: opts.FailPolicy,
		window:     opts.ContextWindow,
		onCtxErr:   opts.OnContextError,
	}, nil
}

// Application 返回应用标识
func (g *Gate) Application() string {
	return g.app
}

// Before 执行前的许可流程：注册 → 拉取上下文 → 请求许可 → 决策 → will-call 通知。
// 放行时返回调用快照；拒绝时返回 *errors.DenialError，其余错误不会返回。
func (g *Gate) Before(ctx context.Context, call ToolCall) (*Invocation, error) {
	inv := NewInvocation(call)
	err := g.guard(ctx, PhaseBefore, inv, func(ctx context.Context) error {
		return g.before(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// After 执行后的结果上报：注册 → 拉取上下文 → did-call 通知。永远不会拒绝，也不返回错误。
func (g *Gate) After(ctx context.Context, inv *Invocation, result any) {
	if inv == nil {
		g.logger.Warn("after called without invocation")
		return
	}
	_ = g.guard(ctx, PhaseAfter, inv, func(ctx context.Context) error {
		return g.after(ctx, inv, result)
	})
}

func (g *Gate) before(ctx context.Context, inv *Invocation) error {
	g.register(ctx, PhaseBefore, inv)

	convo, err := FetchContext(ctx, g.messages, inv.SessionID, g.window)
	if err != nil {
		switch g.onCtxErr {
		case ContextDeny:
			d := Decision{Outcome: Denied, Reason: "conversation context unavailable", Source: ReasonContextError, Cause: err}
			g.record(inv, d)
			g.contain(ctx, PhaseBefore, inv, err)
			return d.Err(inv.Tool)
		case ContextBypass:
			d := Decision{Outcome: Permitted, Reason: "conversation context unavailable", Source: ReasonBypass, Cause: err}
			g.record(inv, d)
			g.contain(ctx, PhaseBefore, inv, err)
			g.logger.Warn("permission check bypassed", "tool", inv.Tool, "session_id", inv.SessionID, "call_id", inv.CallID)
			return nil
		default:
			g.contain(ctx, PhaseBefore, inv, err)
			convo = []policy.ConversationMessage{}
		}
	}

	payload := g.payload(inv, convo)
	resp, err := g.client.RequestPermission(ctx, payload)
	d := Decide(resp, err, g.failPolicy)
	g.record(inv, d)
	if d.Cause != nil {
		g.contain(ctx, PhaseBefore, inv, d.Cause)
	}
	if d.Outcome == Denied {
		g.logger.Info("tool call denied",
			"tool", inv.Tool, "session_id", inv.SessionID, "call_id", inv.CallID,
			"reason", d.Reason, "source", d.Source)
		return d.Err(inv.Tool)
	}
	if d.Source == ReasonFailOpen {
		g.logger.Warn("tool call permitted without a decision", "tool", inv.Tool, "call_id", inv.CallID)
	}

	if err := g.client.NotifyWillCall(ctx, payload); err != nil {
		g.contain(ctx, PhaseBefore, inv, err)
	}
	return nil
}

func (g *Gate) after(ctx context.Context, inv *Invocation, result any) error {
	g.register(ctx, PhaseAfter, inv)

	convo, err := FetchContext(ctx, g.messages, inv.SessionID, g.window)
	if err != nil {
		g.contain(ctx, PhaseAfter, inv, err)
		convo = []policy.ConversationMessage{}
	}
	req := &policy.DidCallRequest{
		ToolCallPayload: *g.payload(inv, convo),
		Result:          SerializeResult(result),
	}
	return g.client.NotifyDidCall(ctx, req)
}

func (g *Gate) register(ctx context.Context, phase string, inv *Invocation) {
	if err := g.reg.ensure(ctx, inv.Tool); err != nil {
		g.contain(ctx, phase, inv, fmt.Errorf("register tool %q: %w", inv.Tool, err))
	}
}

func (g *Gate) payload(inv *Invocation, convo []policy.ConversationMessage) *policy.ToolCallPayload {
	return &policy.ToolCallPayload{
		Application: g.app,
		ToolName:    inv.Tool,
		Args:        inv.Args,
		Context:     convo,
	}
}

// guard 错误隔离边界：只放行 DenialError，其余错误（含 panic）记录后吞掉。
// 远端调用脱离 host ctx 的取消，超时由 policy 客户端控制。
func (g *Gate) guard(ctx context.Context, phase string, inv *Invocation, fn func(ctx context.Context) error) (err error) {
	start := time.Now()
	ctx, span := tracing.StartPhaseSpan(context.WithoutCancel(ctx), phase, inv.Tool, inv.SessionID)
	defer func() {
		if r := recover(); r != nil {
			perr := fmt.Errorf("panic in %s phase: %v", phase, r)
			g.contain(ctx, phase, inv, perr)
			err = g.afterPanic(phase, inv, perr)
		}
		metrics.PhaseDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
		tracing.EndWithError(span, err)
	}()

	err = fn(ctx)
	if err == nil || gerrors.IsDenial(err) {
		return err
	}
	g.contain(ctx, phase, inv, err)
	return nil
}

// afterPanic before 阶段在得出决策前 panic 时按 fail policy 决策；已有决策则沿用
func (g *Gate) afterPanic(phase string, inv *Invocation, cause error) error {
	if phase != PhaseBefore {
		return nil
	}
	if inv.Decision.Source == "" {
		g.record(inv, Decide(nil, cause, g.failPolicy))
	}
	if inv.Decision.Outcome == Denied {
		return inv.Decision.Err(inv.Tool)
	}
	return nil
}

func (g *Gate) contain(ctx context.Context, phase string, inv *Invocation, err error) {
	kind := gerrors.Kind(err)
	metrics.ContainedErrorTotal.WithLabelValues(phase, kind).Inc()
	g.logger.ErrorContext(ctx, "tool gate error contained",
		"phase", phase,
		"tool", inv.Tool,
		"session_id", inv.SessionID,
		"call_id", inv.CallID,
		"kind", kind,
		"error", err,
	)
}

func (g *Gate) record(inv *Invocation, d Decision) {
	inv.Decision = d
	metrics.DecisionTotal.WithLabelValues(d.Outcome.String(), d.Source).Inc()
}
