// Package tracing 提供 gate 各阶段与 policy RPC 的 span（不依赖 internal）
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "toolgate"

// StartPhaseSpan 开始 before/after 阶段 span
func StartPhaseSpan(ctx context.Context, phase, toolName, sessionID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "gate."+phase,
		trace.WithAttributes(
			attribute.String("tool.name", toolName),
			attribute.String("session.id", sessionID),
		),
	)
}

// StartRPCSpan 开始一次 policy RPC span
func StartRPCSpan(ctx context.Context, method string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "policy."+method,
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndWithError 记录错误（可为 nil）并结束 span
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
