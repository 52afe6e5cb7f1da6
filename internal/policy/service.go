package policy

import (
	"context"

	"google.golang.org/grpc"
)

// 服务与方法全名
const (
	RegistrationServiceName = "toolgate.v1.RegistrationService"
	PermissionServiceName   = "toolgate.v1.PermissionService"
	NotificationServiceName = "toolgate.v1.NotificationService"

	MethodRegisterTool      = "/" + RegistrationServiceName + "/RegisterTool"
	MethodRequestPermission = "/" + PermissionServiceName + "/RequestPermission"
	MethodNotifyWillCall    = "/" + NotificationServiceName + "/NotifyWillCall"
	MethodNotifyDidCall     = "/" + NotificationServiceName + "/NotifyDidCall"
)

// RegistrationServer 服务端：工具注册
type RegistrationServer interface {
	RegisterTool(context.Context, *RegisterToolRequest) (*Ack, error)
}

// PermissionServer 服务端：许可请求
type PermissionServer interface {
	RequestPermission(context.Context, *ToolCallPayload) (*PermissionResponse, error)
}

// NotificationServer 服务端：执行前后通知
type NotificationServer interface {
	NotifyWillCall(context.Context, *ToolCallPayload) (*Ack, error)
	NotifyDidCall(context.Context, *DidCallRequest) (*Ack, error)
}

// RegisterRegistrationServer 注册到 grpc.Server
func RegisterRegistrationServer(s grpc.ServiceRegistrar, srv RegistrationServer) {
	s.RegisterService(&registrationServiceDesc, srv)
}

// RegisterPermissionServer 注册到 grpc.Server
func RegisterPermissionServer(s grpc.ServiceRegistrar, srv PermissionServer) {
	s.RegisterService(&permissionServiceDesc, srv)
}

// RegisterNotificationServer 注册到 grpc.Server
func RegisterNotificationServer(s grpc.ServiceRegistrar, srv NotificationServer) {
	s.RegisterService(&notificationServiceDesc, srv)
}

// unaryHandler 把强类型方法适配为 grpc.MethodDesc.Handler
func unaryHandler[Req any, Resp any](fullMethod string, call func(srv any, ctx context.Context, req *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var registrationServiceDesc = grpc.ServiceDesc{
	ServiceName: RegistrationServiceName,
	HandlerType: (*RegistrationServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "RegisterTool",
			Handler: unaryHandler(MethodRegisterTool, func(srv any, ctx context.Context, req *RegisterToolRequest) (*Ack, error) {
				return srv.(RegistrationServer).RegisterTool(ctx, req)
			}),
		},
	},
	Metadata: "toolgate/v1/policy",
}

var permissionServiceDesc = grpc.ServiceDesc{
	ServiceName: PermissionServiceName,
	HandlerType: (*PermissionServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "RequestPermission",
			Handler: unaryHandler(MethodRequestPermission, func(srv any, ctx context.Context, req *ToolCallPayload) (*PermissionResponse, error) {
				return srv.(PermissionServer).RequestPermission(ctx, req)
			}),
		},
	},
	Metadata: "toolgate/v1/policy",
}

var notificationServiceDesc = grpc.ServiceDesc{
	ServiceName: NotificationServiceName,
	HandlerType: (*NotificationServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "NotifyWillCall",
			Handler: unaryHandler(MethodNotifyWillCall, func(srv any, ctx context.Context, req *ToolCallPayload) (*Ack, error) {
				return srv.(NotificationServer).NotifyWillCall(ctx, req)
			}),
		},
		{
			MethodName: "NotifyDidCall",
			Handler: unaryHandler(MethodNotifyDidCall, func(srv any, ctx context.Context, req *DidCallRequest) (*Ack, error) {
				return srv.(NotificationServer).NotifyDidCall(ctx, req)
			}),
		},
	},
	Metadata: "toolgate/v1/policy",
}
