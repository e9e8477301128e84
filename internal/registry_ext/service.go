package registry_ext

import (
	"fmt"
	"sync"

	"github.com/timelyrain333/bifang-sub000/infra/application/config"
	"github.com/timelyrain333/bifang-sub000/infra/application/core"
	"github.com/timelyrain333/bifang-sub000/infra/application/registry"
	bizConfig "github.com/timelyrain333/bifang-sub000/internal/config"
	bizConsts "github.com/timelyrain333/bifang-sub000/internal/consts"
	"github.com/timelyrain333/bifang-sub000/internal/notify"
	"github.com/timelyrain333/bifang-sub000/internal/queue"
	"github.com/timelyrain333/bifang-sub000/internal/service"
)

var defaultsOnce sync.Once

// bizCfg builder 在配置加载之后才执行, 此时补齐默认值
func bizCfg() *bizConfig.BizConfig {
	b := bizConfig.GetBizConfig()
	defaultsOnce.Do(b.ApplyDefaults)
	return b
}

func init() {
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, notify.NewBus(bizCfg().Notify), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, service.NewEngine(bizCfg().Executor), nil
	})

	// local: 进程内 worker pool; asynq: 经 redis 分发
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		ex := bizCfg().Executor
		if ex.Transport != bizConsts.TRANSPORT_LOCAL {
			return false, nil, nil
		}
		return true, service.NewWorkerPool(ex.WorkerPoolSize, ex.QueueSize), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		ex := bizCfg().Executor
		switch ex.Transport {
		case bizConsts.TRANSPORT_LOCAL:
			return true, service.NewLocalTransport(ex), nil
		case bizConsts.TRANSPORT_ASYNQ:
			if cfg.Redis == nil || !cfg.Redis.Enabled {
				return true, nil, fmt.Errorf("executor transport %q requires redis to be enabled", ex.Transport)
			}
			return true, queue.NewTransport(ex), nil
		default:
			return true, nil, fmt.Errorf("unknown executor transport %q", ex.Transport)
		}
	})

	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, service.NewSchedulerService(bizCfg().Scheduler), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, service.NewReaper(bizCfg().Reaper), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, service.NewOpsService(), nil
	})
}
