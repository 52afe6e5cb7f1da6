// Package policy 远端 policy 服务的 gRPC 客户端：三个逻辑服务共用一个 ClientConn
package policy

import (
	"context"
	"fmt"
	"path"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	gerrors "toolgate/pkg/errors"
	"toolgate/pkg/metrics"
	"toolgate/pkg/tracing"
)

// Options 客户端选项
type Options struct {
	Addr    string        // host:port
	Timeout time.Duration // 单次 RPC 超时，<=0 不设置
	// TLS 为 nil 时使用 insecure 通道
	TLS       *TLSOptions
	Token     string  // 非空时每次调用附带 authorization: Bearer <token>
	NotifyQPS float64 // will/did 通知限速，<=0 不限
	// DialOptions 追加的拨号选项（测试中注入 bufconn dialer）
	DialOptions []grpc.DialOption
}

// TLSOptions 安全通道
type TLSOptions struct {
	CAFile     string
	ServerName string
}

// Client 远端 policy 服务客户端，可并发使用
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
	limiter *rate.Limiter
	health  healthpb.HealthClient
}

// Dial 创建客户端；grpc.NewClient 不会立即建连，首次调用时才连接
func Dial(opts Options) (*Client, error) {
	dialOpts := make([]grpc.DialOption, 0, len(opts.DialOptions)+2)
	if opts.TLS != nil {
		creds, err := transportCredentials(opts.TLS)
		if err != nil {
			return nil, err
		}
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(creds))
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if opts.Token != "" {
		dialOpts = append(dialOpts, grpc.WithPerRPCCredentials(bearerToken{
			token:      opts.Token,
			requireTLS: opts.TLS != nil,
		}))
	}
	dialOpts = append(dialOpts, opts.DialOptions...)

	conn, err := grpc.NewClient(opts.Addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial policy service %s: %w", opts.Addr, err)
	}
	c := &Client{
		conn:    conn,
		timeout: opts.Timeout,
		health:  healthpb.NewHealthClient(conn),
	}
	if opts.NotifyQPS > 0 {
		burst := int(opts.NotifyQPS)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.NotifyQPS), burst)
	}
	return c, nil
}

func transportCredentials(t *TLSOptions) (credentials.TransportCredentials, error) {
	if t.CAFile == "" {
		return credentials.NewClientTLSFromCert(nil, t.ServerName), nil
	}
	creds, err := credentials.NewClientTLSFromFile(t.CAFile, t.ServerName)
	if err != nil {
		return nil, fmt.Errorf("load policy CA %s: %w", t.CAFile, err)
	}
	return creds, nil
}

// Close 关闭底层连接
func (c *Client) Close() error {
	return c.conn.Close()
}

// Ping 通过 gRPC health 协议检查 policy 服务是否 SERVING
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return gerrors.Mark(fmt.Errorf("health check: %w", err), gerrors.ErrTransport)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return gerrors.Mark(fmt.Errorf("health check: status %s", resp.GetStatus()), gerrors.ErrTransport)
	}
	return nil
}

// RegisterTool 注册工具（服务端需保证幂等）
func (c *Client) RegisterTool(ctx context.Context, req *RegisterToolRequest) error {
	return c.invoke(ctx, MethodRegisterTool, req, new(Ack))
}

// RequestPermission 请求许可；返回的响应可能没有决策（Permitted 为 nil）
func (c *Client) RequestPermission(ctx context.Context, req *ToolCallPayload) (*PermissionResponse, error) {
	resp := new(PermissionResponse)
	if err := c.invoke(ctx, MethodRequestPermission, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// NotifyWillCall 执行前通知
func (c *Client) NotifyWillCall(ctx context.Context, req *ToolCallPayload) error {
	if err := c.allowNotify(MethodNotifyWillCall); err != nil {
		return err
	}
	return c.invoke(ctx, MethodNotifyWillCall, req, new(Ack))
}

// NotifyDidCall 执行后通知
func (c *Client) NotifyDidCall(ctx context.Context, req *DidCallRequest) error {
	if err := c.allowNotify(MethodNotifyDidCall); err != nil {
		return err
	}
	return c.invoke(ctx, MethodNotifyDidCall, req, new(Ack))
}

func (c *Client) allowNotify(method string) error {
	if c.limiter == nil || c.limiter.Allow() {
		return nil
	}
	metrics.NotificationDroppedTotal.WithLabelValues(path.Base(method)).Inc()
	return fmt.Errorf("%s: %w", method, gerrors.ErrRateLimited)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// invoke 所有 RPC 的统一出口：超时、span、耗时指标与错误归类
func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	name := path.Base(method)
	ctx, span := tracing.StartRPCSpan(ctx, name)
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	err := c.conn.Invoke(ctx, method, req, resp, grpc.CallContentSubtype(CodecName))
	metrics.RPCDuration.WithLabelValues(name, status.Code(err).String()).Observe(time.Since(start).Seconds())
	tracing.EndWithError(span, err)
	if err != nil {
		return gerrors.Mark(fmt.Errorf("%s: %w", name, err), gerrors.ErrTransport)
	}
	return nil
}

// bearerToken 每次调用附带 Bearer token
type bearerToken struct {
	token      string
	requireTLS bool
}

func (b bearerToken) GetRequestMetadata(_ context.Context, _ ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}

func (b bearerToken) RequireTransportSecurity() bool {
	return b.requireTLS
}
