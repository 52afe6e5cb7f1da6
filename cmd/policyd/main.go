// policyd 开发用 policy 服务：按静态名单应答，供本地联调 toolgate
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	apigrpc "toolgate/internal/api/grpc"
	"toolgate/pkg/config"
	tglog "toolgate/pkg/log"
	"toolgate/pkg/secrets"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（可选）")
	flag.Parse()

	cfg, err := config.LoadPolicydConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	logger, err := tglog.NewLogger(&tglog.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	token, err := secrets.NewResolver().Resolve(context.Background(), cfg.TokenRef)
	if err != nil {
		log.Fatalf("解析 token_ref 失败: %v", err)
	}

	dev := apigrpc.NewServer(apigrpc.Rules{
		Deny:        cfg.Deny,
		Silent:      cfg.Silent,
		Unavailable: cfg.Unavailable,
		Token:       token,
	}, logger)
	srv := grpc.NewServer(dev.ServerOptions()...)
	dev.Register(srv)

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		log.Fatalf("监听 %s 失败: %v", cfg.Addr, err)
	}
	go func() {
		logger.Info("policyd listening", "addr", lis.Addr().String(), "deny", cfg.Deny, "silent", cfg.Silent)
		if err := srv.Serve(lis); err != nil {
			logger.Error("policyd serve", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	dev.Shutdown()
	srv.GracefulStop()
	logger.Info("policyd 已关闭")
}
