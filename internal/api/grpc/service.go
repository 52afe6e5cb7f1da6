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

// Package grpc 提供开发用 policy 服务端：按静态名单应答三个服务，供本地联调与端到端测试；不做策略计算。
package grpc

import (
	"context"
	"slices"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"toolgate/internal/policy"
	"toolgate/pkg/log"
)

// Rules 静态名单
type Rules struct {
	Deny        []string `mapstructure:"deny"`        // 明确拒绝
	Silent      []string `mapstructure:"silent"`      // 返回不含决策的响应
	Unavailable []string `mapstructure:"unavailable"` // 返回 codes.Unavailable
	Token       string   `mapstructure:"token"`       // 非空时要求 authorization: Bearer <token>
}

// Server 开发用 policy 服务端，记录收到的注册与通知
type Server struct {
	rules  Rules
	logger *log.Logger
	health *health.Server

	mu         sync.Mutex
	registered map[string]int
	willCalls  []policy.ToolCallPayload
	didCalls   []policy.DidCallRequest
}

// NewServer 根据名单创建 Server，logger 可为 nil
func NewServer(rules Rules, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	return &Server{
		rules:      rules,
		logger:     logger,
		health:     health.NewServer(),
		registered: make(map[string]int),
	}
}

// ServerOptions 返回需要在 grpc.NewServer 时使用的选项（token 校验）
func (s *Server) ServerOptions() []grpc.ServerOption {
	if s.rules.Token == "" {
		return nil
	}
	return []grpc.ServerOption{grpc.ChainUnaryInterceptor(s.authInterceptor)}
}

// Register 注册三个 policy 服务与 health 服务到 grpc.Server
func (s *Server) Register(grpcServer *grpc.Server) {
	policy.RegisterRegistrationServer(grpcServer, s)
	policy.RegisterPermissionServer(grpcServer, s)
	policy.RegisterNotificationServer(grpcServer, s)
	healthpb.RegisterHealthServer(grpcServer, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
}

// Shutdown 把 health 状态置为 NOT_SERVING
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

// RegisterTool 实现 RegistrationService.RegisterTool；重复注册只增加计数
func (s *Server) RegisterTool(ctx context.Context, req *policy.RegisterToolRequest) (*policy.Ack, error) {
	if req.ToolName == "" {
		return nil, status.Error(codes.InvalidArgument, "tool_name required")
	}
	s.mu.Lock()
	s.registered[req.ToolName]++
	n := s.registered[req.ToolName]
	s.mu.Unlock()
	s.logger.Info("tool registered", "application", req.Application, "tool", req.ToolName, "count", n)
	return &policy.Ack{OK: true}, nil
}

// RequestPermission 实现 PermissionService.RequestPermission
func (s *Server) RequestPermission(ctx context.Context, req *policy.ToolCallPayload) (*policy.PermissionResponse, error) {
	if req.ToolName == "" {
		return nil, status.Error(codes.InvalidArgument, "tool_name required")
	}
	switch {
	case slices.Contains(s.rules.Unavailable, req.ToolName):
		return nil, status.Error(codes.Unavailable, "policy backend unavailable")
	case slices.Contains(s.rules.Silent, req.ToolName):
		return &policy.PermissionResponse{}, nil
	case slices.Contains(s.rules.Deny, req.ToolName):
		s.logger.Info("permission denied", "application", req.Application, "tool", req.ToolName)
		return &policy.PermissionResponse{Permitted: policy.Bool(false), Reason: "tool " + req.ToolName + " is on the deny list"}, nil
	}
	return &policy.PermissionResponse{Permitted: policy.Bool(true)}, nil
}

// NotifyWillCall 实现 NotificationService.NotifyWillCall
func (s *Server) NotifyWillCall(ctx context.Context, req *policy.ToolCallPayload) (*policy.Ack, error) {
	s.mu.Lock()
	s.willCalls = append(s.willCalls, *req)
	s.mu.Unlock()
	s.logger.Debug("will call", "tool", req.ToolName, "args", len(req.Args), "context", len(req.Context))
	return &policy.Ack{OK: true}, nil
}

// NotifyDidCall 实现 NotificationService.NotifyDidCall
func (s *Server) NotifyDidCall(ctx context.Context, req *policy.DidCallRequest) (*policy.Ack, error) {
	s.mu.Lock()
	s.didCalls = append(s.didCalls, *req)
	s.mu.Unlock()
	s.logger.Debug("did call", "tool", req.ToolName, "result_bytes", len(req.Result))
	return &policy.Ack{OK: true}, nil
}

// Registrations 返回某工具被注册的次数
func (s *Server) Registrations(tool string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered[tool]
}

// WillCalls 返回收到的 will-call 通知副本
func (s *Server) WillCalls() []policy.ToolCallPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]policy.ToolCallPayload(nil), s.willCalls...)
}

// DidCalls 返回收到的 did-call 通知副本
func (s *Server) DidCalls() []policy.DidCallRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]policy.DidCallRequest(nil), s.didCalls...)
}

func (s *Server) authInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if strings.HasPrefix(info.FullMethod, "/grpc.health.") {
		return handler(ctx, req)
	}
	md, _ := metadata.FromIncomingContext(ctx)
	vals := md.Get("authorization")
	if len(vals) == 0 || vals[0] != "Bearer "+s.rules.Token {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}
	return handler(ctx, req)
}
