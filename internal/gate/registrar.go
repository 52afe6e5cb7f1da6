package gate

import (
	"context"

	"golang.org/x/sync/singleflight"

	"toolgate/internal/policy"
	"toolgate/pkg/metrics"
)

// registrar 首次见到工具名时向 policy 服务注册；同名并发注册合并为一次调用，
// 成功后才写入 KnownTools，失败的工具下次调用会重新注册
type registrar struct {
	application string
	client      PolicyClient
	known       KnownTools
	group       singleflight.Group
}

func (r *registrar) ensure(ctx context.Context, name string) error {
	if r.known.IsKnown(ctx, name) {
		return nil
	}
	_, err, _ := r.group.Do(name, func() (any, error) {
		if r.known.IsKnown(ctx, name) {
			return nil, nil
		}
		err := r.client.RegisterTool(ctx, &policy.RegisterToolRequest{
			Application: r.application,
			ToolName:    name,
			ArgSchema:   map[string]string{},
		})
		if err != nil {
			metrics.RegistrationTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		metrics.RegistrationTotal.WithLabelValues("ok").Inc()
		r.known.MarkKnown(ctx, name)
		return nil, nil
	})
	return err
}
