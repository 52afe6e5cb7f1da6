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

// Package errors 提供统一错误辅助与 gate 错误分类，不依赖 internal
package errors

import (
	"errors"
	"fmt"
)

// 常用哨兵错误
var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidArg = errors.New("invalid argument")

	// ErrSessionNotFound host 侧找不到会话
	ErrSessionNotFound = errors.New("session not found")
	// ErrContextFetch 拉取对话上下文失败
	ErrContextFetch = errors.New("context fetch failed")
	// ErrTransport 远端 policy 服务调用在网络/序列化层失败
	ErrTransport = errors.New("policy transport failed")
	// ErrMalformedResponse 收到响应但没有可用的决策
	ErrMalformedResponse = errors.New("malformed policy response")
	// ErrRateLimited 通知因限速被丢弃
	ErrRateLimited = errors.New("notification dropped by rate limit")
)

// DenialError 显式拒绝：唯一允许穿过 gate 边界返回给 host 的错误
type DenialError struct {
	Tool   string
	Reason string
	// FailedClosed 为 true 表示没有拿到有效决策、由 fail-closed 策略转成的拒绝
	FailedClosed bool
}

func (e *DenialError) Error() string {
	if e.FailedClosed {
		return fmt.Sprintf("tool %q denied (failed closed): %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("tool %q denied by policy: %s", e.Tool, e.Reason)
}

// IsDenial 判断 err 链上是否有 DenialError
func IsDenial(err error) bool {
	var d *DenialError
	return errors.As(err, &d)
}

// Kind 返回错误分类标签（日志与 metrics 使用）
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsDenial(err):
		return "denial"
	case errors.Is(err, ErrContextFetch):
		return "context_fetch"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "internal"
	}
}

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Mark 用哨兵 kind 标注 err，同时保留 err 原链（errors.Is 对两者都成立）
func Mark(err error, kind error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
