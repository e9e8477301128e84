package registry_ext

import (
	"github.com/timelyrain333/bifang-sub000/infra/application/config"
	"github.com/timelyrain333/bifang-sub000/infra/application/core"
	"github.com/timelyrain333/bifang-sub000/infra/application/registry"
	"github.com/timelyrain333/bifang-sub000/internal/dao"
)

func init() {
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, dao.NewTaskDao(bizCfg().DataSource), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, dao.NewExecutionDao(bizCfg().DataSource), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, dao.NewCredentialDao(bizCfg().DataSource), nil
	})
}
