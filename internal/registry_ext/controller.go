package registry_ext

import (
	"github.com/timelyrain333/bifang-sub000/infra/application/config"
	appconsts "github.com/timelyrain333/bifang-sub000/infra/application/consts"
	"github.com/timelyrain333/bifang-sub000/infra/application/core"
	"github.com/timelyrain333/bifang-sub000/infra/application/registry"
	"github.com/timelyrain333/bifang-sub000/internal/api"
	"github.com/timelyrain333/bifang-sub000/internal/consts"
)

func init() {
	// http_server 在控制器之后启动
	registry.ExtendRuntimeDependencies(appconsts.COMPONENT_HTTP_SERVER,
		consts.COMP_CTRL_TASK, consts.COMP_CTRL_OPS, consts.COMP_CTRL_NOTIFY)

	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, api.NewTaskController(), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, api.NewOpsController(), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, api.NewNotifyController(), nil
	})
}
