package builtin

import (
	"errors"

	"toolgate/internal/tool/registry"
)

// RegisterBuiltin 注册 echo 与 http.request；opts 作用于 http.request
func RegisterBuiltin(reg *registry.Registry, opts ...HTTPOption) error {
	if reg == nil {
		return nil
	}
	return errors.Join(
		reg.Register(NewEchoTool()),
		reg.Register(NewHTTPTool(opts...)),
	)
}
