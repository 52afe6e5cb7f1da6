package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 sidecar 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		DecisionTotal, RPCDuration, ContainedErrorTotal,
		RegistrationTotal, NotificationDroppedTotal, PhaseDuration,
	)
}

// DecisionTotal 许可决策数（按结果与原因）
var DecisionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "toolgate_decisions_total",
		Help: "许可决策总数",
	},
	[]string{"outcome", "reason"}, // permitted | denied ; policy | fail_closed | fail_open | context_error | bypass
)

// RPCDuration 远端 policy 调用耗时（秒）
var RPCDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "toolgate_rpc_duration_seconds",
		Help:    "policy RPC 耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "code"},
)

// ContainedErrorTotal 被 gate 边界吞掉的错误数
var ContainedErrorTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "toolgate_contained_errors_total",
		Help: "被 gate 边界记录并吞掉的错误数",
	},
	[]string{"phase", "kind"},
)

// RegistrationTotal 工具注册调用数
var RegistrationTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "toolgate_registrations_total",
		Help: "工具注册调用总数",
	},
	[]string{"result"}, // ok | error
)

// NotificationDroppedTotal 因限速被丢弃的通知数
var NotificationDroppedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "toolgate_notifications_dropped_total",
		Help: "因限速被丢弃的通知数",
	},
	[]string{"method"},
)

// PhaseDuration before/after 阶段整体耗时（秒）
var PhaseDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "toolgate_phase_duration_seconds",
		Help:    "before/after 阶段耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"phase"},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
