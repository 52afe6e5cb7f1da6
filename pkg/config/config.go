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

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 默认值
const (
	DefaultApplication   = "toolgate"
	DefaultPolicyHost    = "127.0.0.1"
	DefaultPolicyPort    = 50051
	DefaultPolicyTimeout = 10 * time.Second
	DefaultContextWindow = 5
	DefaultPendingTTL    = 30 * time.Minute
	DefaultAPIPort       = 4097
)

// on_context_error 取值
const (
	OnContextErrorEmpty  = "empty"  // 以空上下文继续请求许可
	OnContextErrorDeny   = "deny"   // 直接 fail-closed 拒绝
	OnContextErrorBypass = "bypass" // 跳过远端 gate，允许执行
)

// Config 应用配置结构体
type Config struct {
	Application string           `mapstructure:"application"`
	Policy      PolicyConfig     `mapstructure:"policy"`
	Gate        GateConfig       `mapstructure:"gate"`
	Registry    RegistryConfig   `mapstructure:"registry"`
	Host        HostConfig       `mapstructure:"host"`
	API         APIConfig        `mapstructure:"api"`
	Log         LogConfig        `mapstructure:"log"`
	Monitoring  MonitoringConfig `mapstructure:"monitoring"`
	Secrets     SecretsConfig    `mapstructure:"secrets"`
}

// PolicyConfig 远端 policy 服务（gRPC）连接配置
type PolicyConfig struct {
	Host         string    `mapstructure:"host"`
	Port         int       `mapstructure:"port"`
	Timeout      string    `mapstructure:"timeout"`        // 单次 RPC 超时，如 "10s"
	TLS          TLSConfig `mapstructure:"tls"`            // 未启用时使用 insecure 通道
	AuthTokenRef string    `mapstructure:"auth_token_ref"` // env:NAME | file:/path | vault:<mount>/<path>#field | literal:xxx
	NotifyQPS    float64   `mapstructure:"notify_qps"`     // will/did 通知限速，<=0 不限
}

// TLSConfig 通道安全配置
type TLSConfig struct {
	Enable     bool   `mapstructure:"enable"`
	CAFile     string `mapstructure:"ca_file"`
	ServerName string `mapstructure:"server_name"`
}

// GateConfig 决策策略配置
type GateConfig struct {
	FailClosed     *bool  `mapstructure:"fail_closed"`      // 未配置时默认 true
	ContextWindow  int    `mapstructure:"context_window"`   // 上下文消息条数，默认 5
	OnContextError string `mapstructure:"on_context_error"` // empty | deny | bypass
	PendingTTL     string `mapstructure:"pending_ttl"`      // sidecar 中 Before→After 之间保留参数快照的时长
}

// RegistryConfig 已注册工具集合的存储
type RegistryConfig struct {
	Type      string `mapstructure:"type"` // memory | redis
	Addr      string `mapstructure:"addr"`
	DB        int    `mapstructure:"db"`
	Password  string `mapstructure:"password"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// HostConfig host 协作方（会话消息来源与日志转发）
type HostConfig struct {
	Type        string `mapstructure:"type"`     // http | postgres | memory
	BaseURL     string `mapstructure:"base_url"` // type=http 时必填
	DSN         string `mapstructure:"dsn"`      // type=postgres 时必填
	Timeout     string `mapstructure:"timeout"`
	ForwardLogs bool   `mapstructure:"forward_logs"` // 把诊断日志转发到 host 的 log 接口
}

// APIConfig sidecar HTTP 服务配置
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool    `mapstructure:"enable"`
	ServiceName    string  `mapstructure:"service_name"`
	ExportEndpoint string  `mapstructure:"export_endpoint"`
	Insecure       bool    `mapstructure:"insecure"`
	SampleRatio    float64 `mapstructure:"sample_ratio"` // (0,1) 按比例采样，其余值全采
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// SecretsConfig secret 解析配置（auth_token_ref 使用）
type SecretsConfig struct {
	Vault VaultConfig `mapstructure:"vault"`
}

// VaultConfig Vault 连接配置
type VaultConfig struct {
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	KVVersion int    `mapstructure:"kv_version"` // 1 | 2（默认）
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("TOOLGATE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// setDefaults 注册全部配置键：AutomaticEnv 只覆盖 viper 已知的键，
// 配置文件中缺省的键也要能由 TOOLGATE_* 环境变量设置
func setDefaults(v *viper.Viper) {
	v.SetDefault("application", DefaultApplication)

	v.SetDefault("policy.host", DefaultPolicyHost)
	v.SetDefault("policy.port", DefaultPolicyPort)
	v.SetDefault("policy.timeout", DefaultPolicyTimeout.String())
	v.SetDefault("policy.tls.enable", false)
	v.SetDefault("policy.tls.ca_file", "")
	v.SetDefault("policy.tls.server_name", "")
	v.SetDefault("policy.auth_token_ref", "")
	v.SetDefault("policy.notify_qps", 0)

	v.SetDefault("gate.fail_closed", true)
	v.SetDefault("gate.context_window", DefaultContextWindow)
	v.SetDefault("gate.on_context_error", OnContextErrorEmpty)
	v.SetDefault("gate.pending_ttl", DefaultPendingTTL.String())

	v.SetDefault("registry.type", "memory")
	v.SetDefault("registry.addr", "")
	v.SetDefault("registry.db", 0)
	v.SetDefault("registry.password", "")
	v.SetDefault("registry.key_prefix", "toolgate:tools")

	v.SetDefault("host.type", "http")
	v.SetDefault("host.base_url", "")
	v.SetDefault("host.dsn", "")
	v.SetDefault("host.timeout", "")
	v.SetDefault("host.forward_logs", false)

	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", DefaultAPIPort)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "")
	v.SetDefault("log.file", "")

	v.SetDefault("monitoring.prometheus.enable", false)
	v.SetDefault("monitoring.tracing.enable", false)
	v.SetDefault("monitoring.tracing.service_name", "")
	v.SetDefault("monitoring.tracing.export_endpoint", "")
	v.SetDefault("monitoring.tracing.insecure", false)
	v.SetDefault("monitoring.tracing.sample_ratio", 0)

	v.SetDefault("secrets.vault.address", "")
	v.SetDefault("secrets.vault.token", "")
	v.SetDefault("secrets.vault.kv_version", 2)
}

// LoadGateConfig 加载 sidecar 配置（configs/toolgate.yaml）
func LoadGateConfig() (*Config, error) {
	return LoadConfig("configs/toolgate.yaml")
}

// Default 返回仅含默认值的配置（无配置文件时使用）
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults 补齐未配置的字段
func (c *Config) ApplyDefaults() {
	if c.Application == "" {
		c.Application = DefaultApplication
	}
	if c.Policy.Host == "" {
		c.Policy.Host = DefaultPolicyHost
	}
	if c.Policy.Port <= 0 {
		c.Policy.Port = DefaultPolicyPort
	}
	if c.Gate.FailClosed == nil {
		t := true
		c.Gate.FailClosed = &t
	}
	if c.Gate.ContextWindow == 0 {
		c.Gate.ContextWindow = DefaultContextWindow
	}
	if c.Gate.OnContextError == "" {
		c.Gate.OnContextError = OnContextErrorEmpty
	}
	if c.Registry.Type == "" {
		c.Registry.Type = "memory"
	}
	if c.Registry.KeyPrefix == "" {
		c.Registry.KeyPrefix = "toolgate:tools"
	}
	if c.Host.Type == "" {
		c.Host.Type = "http"
	}
	if c.API.Host == "" {
		c.API.Host = "127.0.0.1"
	}
	if c.API.Port <= 0 {
		c.API.Port = DefaultAPIPort
	}
}

// Validate 校验配置组合
func (c *Config) Validate() error {
	if c.Gate.ContextWindow < 0 {
		return fmt.Errorf("gate.context_window must be positive, got %d", c.Gate.ContextWindow)
	}
	switch c.Gate.OnContextError {
	case OnContextErrorEmpty, OnContextErrorDeny, OnContextErrorBypass:
	default:
		return fmt.Errorf("gate.on_context_error: unsupported value %q", c.Gate.OnContextError)
	}
	switch c.Registry.Type {
	case "memory":
	case "redis":
		if c.Registry.Addr == "" {
			return fmt.Errorf("registry.addr is required when registry.type=redis")
		}
	default:
		return fmt.Errorf("registry.type: unsupported value %q", c.Registry.Type)
	}
	switch c.Host.Type {
	case "memory":
	case "http":
		if c.Host.BaseURL == "" {
			return fmt.Errorf("host.base_url is required when host.type=http")
		}
	case "postgres":
		if c.Host.DSN == "" {
			return fmt.Errorf("host.dsn is required when host.type=postgres")
		}
	default:
		return fmt.Errorf("host.type: unsupported value %q", c.Host.Type)
	}
	for name, d := range map[string]string{
		"policy.timeout":   c.Policy.Timeout,
		"gate.pending_ttl": c.Gate.PendingTTL,
		"host.timeout":     c.Host.Timeout,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// PolicyAddr 返回 host:port
func (c *Config) PolicyAddr() string {
	return fmt.Sprintf("%s:%d", c.Policy.Host, c.Policy.Port)
}

// FailClosed 返回是否 fail-closed（默认 true）
func (c *Config) FailClosed() bool {
	return c.Gate.FailClosed == nil || *c.Gate.FailClosed
}

// PolicyTimeout 单次 RPC 超时
func (c *Config) PolicyTimeout() time.Duration {
	return ParseDuration(c.Policy.Timeout, DefaultPolicyTimeout)
}

// PendingTTL sidecar 参数快照保留时长
func (c *Config) PendingTTL() time.Duration {
	return ParseDuration(c.Gate.PendingTTL, DefaultPendingTTL)
}

// ParseDuration 解析时长字符串，无效或空时返回 defaultVal
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// PolicydConfig 开发用 policy 服务配置（cmd/policyd）
type PolicydConfig struct {
	Addr        string    `mapstructure:"addr"`
	Deny        []string  `mapstructure:"deny"`
	Silent      []string  `mapstructure:"silent"`
	Unavailable []string  `mapstructure:"unavailable"`
	TokenRef    string    `mapstructure:"token_ref"`
	Log         LogConfig `mapstructure:"log"`
}

// LoadPolicydConfig 加载 policyd 配置；path 为空时只读取环境变量（TOOLGATE_POLICYD_*）
func LoadPolicydConfig(path string) (*PolicydConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("TOOLGATE_POLICYD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetDefault("addr", fmt.Sprintf(":%d", DefaultPolicyPort))
	v.SetDefault("deny", []string{})
	v.SetDefault("silent", []string{})
	v.SetDefault("unavailable", []string{})
	v.SetDefault("token_ref", "")
	v.SetDefault("log.level", "info")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("无法读取配置文件: %w", err)
		}
	}
	var cfg PolicydConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}
	return &cfg, nil
}
