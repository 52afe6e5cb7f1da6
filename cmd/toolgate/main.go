package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"toolgate/internal/app"
	"toolgate/internal/app/api"
	"toolgate/pkg/config"
)

func main() {
	configPath := flag.String("config", "configs/toolgate.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	bootstrap, err := app.NewBootstrap(context.Background(), cfg)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	application, err := api.NewApp(bootstrap, addr)
	if err != nil {
		_ = bootstrap.Close(context.Background())
		log.Fatalf("创建 sidecar 应用失败: %v", err)
	}

	go func() {
		if err := application.Run(); err != nil && err != http.ErrServerClosed {
			log.Printf("sidecar 异常退出: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Shutdown(ctx); err != nil {
		log.Printf("关闭失败: %v", err)
	}
	log.Println("sidecar 已关闭")
}
