package gate

import (
	"fmt"

	"toolgate/internal/policy"
	gerrors "toolgate/pkg/errors"
)

// Outcome 许可结果
type Outcome int

const (
	Denied Outcome = iota
	Permitted
)

func (o Outcome) String() string {
	if o == Permitted {
		return "permitted"
	}
	return "denied"
}

// FailPolicy 没有拿到有效决策时的处理方式
type FailPolicy int

const (
	// FailClosed 缺失决策即拒绝（默认）
	FailClosed FailPolicy = iota
	// FailOpen 缺失决策即放行，只用于显式关闭 fail-closed 的部署
	FailOpen
)

func (p FailPolicy) String() string {
	if p == FailOpen {
		return "fail_open"
	}
	return "fail_closed"
}

// 决策原因（metrics 的 reason 标签）
const (
	ReasonPolicy       = "policy"
	ReasonFailClosed   = "fail_closed"
	ReasonFailOpen     = "fail_open"
	ReasonContextError = "context_error"
	ReasonBypass       = "bypass"
)

// Decision 单次许可请求的最终结论
type Decision struct {
	Outcome Outcome
	// Reason policy 给出的原因，或本地生成的说明
	Reason string
	// Source 决策来源，取值见 Reason* 常量
	Source string
	// Cause 导致 fail-closed/fail-open 的底层错误
	Cause error
}

// Decide 把一次 RequestPermission 的结果（响应或错误）转换为决策。
// 只有响应中明确的 permitted=true 才放行；false 为显式拒绝；
// 无响应、无决策字段、调用失败都按 fp 处理。
func Decide(resp *policy.PermissionResponse, err error, fp FailPolicy) Decision {
	if err == nil && resp != nil && resp.Permitted != nil {
		if *resp.Permitted {
			return Decision{Outcome: Permitted, Reason: resp.Reason, Source: ReasonPolicy}
		}
		reason := resp.Reason
		if reason == "" {
			reason = "no reason given"
		}
		return Decision{Outcome: Denied, Reason: reason, Source: ReasonPolicy}
	}
	if err == nil {
		err = gerrors.ErrMalformedResponse
	}
	if fp == FailOpen {
		return Decision{Outcome: Permitted, Reason: "no valid decision: " + err.Error(), Source: ReasonFailOpen, Cause: err}
	}
	return Decision{Outcome: Denied, Reason: "no valid decision: " + err.Error(), Source: ReasonFailClosed, Cause: err}
}

// Err 拒绝时返回给 host 的错误，放行时为 nil
func (d Decision) Err(tool string) error {
	if d.Outcome == Permitted {
		return nil
	}
	return &gerrors.DenialError{
		Tool:         tool,
		Reason:       d.Reason,
		FailedClosed: d.Source != ReasonPolicy,
	}
}

// Explicit 决策是否来自 policy 服务本身
func (d Decision) Explicit() bool {
	return d.Source == ReasonPolicy
}

func (d Decision) String() string {
	if d.Cause != nil {
		return fmt.Sprintf("%s (%s): %v", d.Outcome, d.Source, d.Cause)
	}
	return fmt.Sprintf("%s (%s)", d.Outcome, d.Source)
}
