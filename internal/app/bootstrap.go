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

// Package app 统一装配：配置 → 日志 → secrets → policy 客户端 → 已注册工具集合 → 消息来源 → Gate
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"toolgate/internal/gate"
	"toolgate/internal/host"
	"toolgate/internal/policy"
	"toolgate/internal/runtime/session"
	"toolgate/pkg/config"
	"toolgate/pkg/log"
	"toolgate/pkg/secrets"
	"toolgate/pkg/tracing"
)

// Bootstrap 统一初始化：供 sidecar 与嵌入式使用方复用
type Bootstrap struct {
	Config   *config.Config
	Logger   *log.Logger
	Secrets  *secrets.Resolver
	Policy   *policy.Client
	Redis    redis.UniversalClient
	Known    gate.KnownTools
	Messages gate.MessageSource
	Gate     *gate.Gate

	hostLog *host.LogHandler
	pg      *session.PgStore
	tracer  *sdktrace.TracerProvider
}

// NewBootstrap 根据配置创建 Bootstrap；cfg 为 nil 时使用默认配置
// 任一步失败都会关闭已打开的资源并返回 nil
func NewBootstrap(ctx context.Context, cfg *config.Config) (_ *Bootstrap, err error) {
	if cfg == nil {
		cfg = config.Default()
	}
	b := &Bootstrap{Config: cfg}
	defer func() {
		if err != nil {
			_ = b.Close(context.Background())
		}
	}()

	var hostClient *host.Client
	if cfg.Host.Type == "http" {
		hostClient = host.New(host.Options{
			BaseURL: cfg.Host.BaseURL,
			Timeout: config.ParseDuration(cfg.Host.Timeout, host.DefaultTimeout),
			Service: log.ServiceName,
		})
	}

	var extra []slog.Handler
	if cfg.Host.ForwardLogs && hostClient != nil {
		b.hostLog = host.NewLogHandler(hostClient, log.ParseLevel(cfg.Log.Level), 0)
		extra = append(extra, b.hostLog)
	}
	b.Logger, err = log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	}, extra...)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	b.Secrets = secrets.NewResolver()
	if cfg.Secrets.Vault.Address != "" {
		vs, verr := secrets.NewVaultStore(secrets.VaultConfig{
			Address:   cfg.Secrets.Vault.Address,
			Token:     cfg.Secrets.Vault.Token,
			KVVersion: cfg.Secrets.Vault.KVVersion,
		})
		if verr != nil {
			return nil, fmt.Errorf("初始化 vault 失败: %w", verr)
		}
		b.Secrets.Register("vault", vs)
	}

	if cfg.Monitoring.Tracing.Enable && cfg.Monitoring.Tracing.ExportEndpoint != "" {
		b.tracer, err = tracing.InitTracer(tracing.OTelConfig{
			ServiceName:    cfg.Monitoring.Tracing.ServiceName,
			ExportEndpoint: cfg.Monitoring.Tracing.ExportEndpoint,
			Insecure:       cfg.Monitoring.Tracing.Insecure,
			SampleRatio:    cfg.Monitoring.Tracing.SampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("初始化链路追踪失败: %w", err)
		}
	}

	b.Policy, err = DialPolicy(ctx, cfg, b.Secrets)
	if err != nil {
		return nil, err
	}

	switch cfg.Registry.Type {
	case "redis":
		b.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Registry.Addr,
			DB:       cfg.Registry.DB,
			Password: cfg.Registry.Password,
		})
		b.Known = gate.NewRedisKnownTools(b.Redis, cfg.Registry.KeyPrefix+":"+cfg.Application, b.Logger)
	default:
		b.Known = gate.NewMemoryKnownTools()
	}

	switch cfg.Host.Type {
	case "postgres":
		b.pg, err = session.NewPgStore(ctx, cfg.Host.DSN)
		if err != nil {
			return nil, fmt.Errorf("连接 host 消息库失败: %w", err)
		}
		b.Messages = b.pg
	case "memory":
		b.Messages = session.NewMemoryStore()
	default:
		b.Messages = hostClient
	}

	b.Gate, err = gate.New(GateOptions(cfg, b.Policy, b.Messages, b.Known, b.Logger))
	if err != nil {
		return nil, err
	}
	b.Logger.Info("tool gate ready",
		"application", cfg.Application,
		"policy", cfg.PolicyAddr(),
		"fail_closed", cfg.FailClosed(),
		"registry", cfg.Registry.Type,
		"host", cfg.Host.Type,
	)
	return b, nil
}

// GateOptions 由配置生成 gate.Options
func GateOptions(cfg *config.Config, client gate.PolicyClient, messages gate.MessageSource, known gate.KnownTools, logger *log.Logger) gate.Options {
	fp := gate.FailClosed
	if !cfg.FailClosed() {
		fp = gate.FailOpen
	}
	return gate.Options{
		Application:    cfg.Application,
		Client:         client,
		Messages:       messages,
		Known:          known,
		Logger:         logger,
		FailPolicy:     fp,
		ContextWindow:  cfg.Gate.ContextWindow,
		OnContextError: gate.ContextErrorPolicy(cfg.Gate.OnContextError),
	}
}

// DialPolicy 根据配置连接 policy 服务；auth_token_ref 通过 resolver 解析
func DialPolicy(ctx context.Context, cfg *config.Config, resolver *secrets.Resolver) (*policy.Client, error) {
	opts := policy.Options{
		Addr:      cfg.PolicyAddr(),
		Timeout:   cfg.PolicyTimeout(),
		NotifyQPS: cfg.Policy.NotifyQPS,
	}
	if cfg.Policy.TLS.Enable {
		opts.TLS = &policy.TLSOptions{CAFile: cfg.Policy.TLS.CAFile, ServerName: cfg.Policy.TLS.ServerName}
	}
	if cfg.Policy.AuthTokenRef != "" {
		token, err := resolver.Resolve(ctx, cfg.Policy.AuthTokenRef)
		if err != nil {
			return nil, fmt.Errorf("解析 policy.auth_token_ref 失败: %w", err)
		}
		opts.Token = token
	}
	c, err := policy.Dial(opts)
	if err != nil {
		return nil, fmt.Errorf("连接 policy 服务失败: %w", err)
	}
	return c, nil
}

// Close 释放连接；可重复调用
func (b *Bootstrap) Close(ctx context.Context) error {
	var errs []error
	if b.Policy != nil {
		errs = append(errs, b.Policy.Close())
		b.Policy = nil
	}
	if b.Redis != nil {
		errs = append(errs, b.Redis.Close())
		b.Redis = nil
	}
	if b.pg != nil {
		b.pg.Close()
		b.pg = nil
	}
	if b.tracer != nil {
		errs = append(errs, b.tracer.Shutdown(ctx))
		b.tracer = nil
	}
	if b.hostLog != nil {
		b.hostLog.Close()
		b.hostLog = nil
	}
	return errors.Join(errs...)
}
