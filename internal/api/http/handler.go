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

// Package http sidecar HTTP API：非 Go 的 host 通过它接入 gate
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"toolgate/internal/gate"
	"toolgate/internal/storage/cache"
	gerrors "toolgate/pkg/errors"
	"toolgate/pkg/log"
	"toolgate/pkg/metrics"
)

// Pinger policy 服务健康检查（*policy.Client 实现）
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler sidecar 请求处理
type Handler struct {
	gate       *gate.Gate
	pending    cache.Store
	pendingTTL time.Duration
	pinger     Pinger
	logger     *log.Logger
}

// NewHandler 创建 Handler；pending 保存 Before 放行后的调用快照，供 After 取回
func NewHandler(g *gate.Gate, pending cache.Store, pendingTTL time.Duration, pinger Pinger, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Discard()
	}
	return &Handler{gate: g, pending: pending, pendingTTL: pendingTTL, pinger: pinger, logger: logger}
}

// BeforeRequest POST /api/tools/before 请求体
type BeforeRequest struct {
	SessionID string         `json:"session_id"`
	CallID    string         `json:"call_id,omitempty"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args"`
}

// AfterRequest POST /api/tools/after 请求体
type AfterRequest struct {
	SessionID string          `json:"session_id"`
	CallID    string          `json:"call_id"`
	Tool      string          `json:"tool"`
	Args      map[string]any  `json:"args,omitempty"`
	Result    json.RawMessage `json:"result"`
}

// BeforeTool 执行前许可
// POST /api/tools/before
func (h *Handler) BeforeTool(c context.Context, ctx *app.RequestContext) {
	var req BeforeRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	if req.Tool == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "tool is required"})
		return
	}

	inv, err := h.gate.Before(c, gate.ToolCall{
		SessionID: req.SessionID,
		CallID:    req.CallID,
		Tool:      req.Tool,
		Args:      req.Args,
	})
	if err != nil {
		var denial *gerrors.DenialError
		failedClosed := errors.As(err, &denial) && denial.FailedClosed
		ctx.JSON(consts.StatusForbidden, utils.H{
			"allowed":       false,
			"reason":        err.Error(),
			"failed_closed": failedClosed,
		})
		return
	}

	if h.pending != nil {
		if err := h.pending.Set(c, inv.CallID, inv, h.pendingTTL); err != nil {
			h.logger.Warn("store pending invocation failed", "call_id", inv.CallID, "error", err)
		}
	}
	ctx.JSON(consts.StatusOK, utils.H{
		"allowed": true,
		"call_id": inv.CallID,
	})
}

// AfterTool 执行后上报；call_id 命中 Before 的快照时使用快照中的参数
// POST /api/tools/after
func (h *Handler) AfterTool(c context.Context, ctx *app.RequestContext) {
	var req AfterRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}

	inv := h.takePending(c, req.CallID)
	if inv == nil {
		if req.Tool == "" {
			ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "tool is required when call_id is unknown"})
			return
		}
		inv = gate.NewInvocation(gate.ToolCall{
			SessionID: req.SessionID,
			CallID:    req.CallID,
			Tool:      req.Tool,
			Args:      req.Args,
		})
	}

	var result any
	if len(bytes.TrimSpace(req.Result)) > 0 {
		result = req.Result
	}
	h.gate.After(c, inv, result)
	ctx.JSON(consts.StatusAccepted, utils.H{"accepted": true, "call_id": inv.CallID})
}

func (h *Handler) takePending(c context.Context, callID string) *gate.Invocation {
	if h.pending == nil || callID == "" {
		return nil
	}
	var inv gate.Invocation
	if err := h.pending.Take(c, callID, &inv); err != nil {
		if !errors.Is(err, gerrors.ErrNotFound) {
			h.logger.Warn("load pending invocation failed", "call_id", callID, "error", err)
		}
		return nil
	}
	return &inv
}

// HealthCheck 健康检查；policy 不可达时仍返回 200，由 policy 字段体现
// GET /api/health
func (h *Handler) HealthCheck(c context.Context, ctx *app.RequestContext) {
	policyStatus := "unknown"
	if h.pinger != nil {
		if err := h.pinger.Ping(c); err != nil {
			policyStatus = "unreachable"
		} else {
			policyStatus = "serving"
		}
	}
	ctx.JSON(consts.StatusOK, map[string]string{
		"status": "ok",
		"policy": policyStatus,
	})
}

// Metrics Prometheus 文本格式
// GET /metrics
func (h *Handler) Metrics(c context.Context, ctx *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}
