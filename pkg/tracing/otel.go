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

package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// OTelConfig OTLP/HTTP 导出配置
type OTelConfig struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
	// SampleRatio 在 (0,1) 内时按 trace id 比例采样（遵循父 span 决策），否则全采
	SampleRatio float64
}

// InitTracer 创建 TracerProvider 并设为全局；同时设置 W3C tracecontext/baggage 传播，
// 使 sidecar 收到的请求头与 policy RPC 串在同一条 trace 上。调用方负责 Shutdown。
func InitTracer(cfg OTelConfig) (*sdktrace.TracerProvider, error) {
	if cfg.ExportEndpoint == "" {
		return nil, fmt.Errorf("tracing: export endpoint required")
	}
	ctx := context.Background()

	clientOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.ExportEndpoint)}
	if cfg.Insecure {
		clientOpts = append(clientOpts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(clientOpts...))
	if err != nil {
		return nil, fmt.Errorf("tracing: create exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = tracerName
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(semconv.ServiceName(name)))
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp, nil
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio > 0 && ratio < 1 {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
	return sdktrace.ParentBased(sdktrace.AlwaysSample())
}
