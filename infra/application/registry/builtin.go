package registry

import (
	"github.com/timelyrain333/bifang-sub000/infra/application/components/http_client"
	"github.com/timelyrain333/bifang-sub000/infra/application/components/http_server"
	"github.com/timelyrain333/bifang-sub000/infra/application/components/logging"
	"github.com/timelyrain333/bifang-sub000/infra/application/components/mysqlgorm"
	"github.com/timelyrain333/bifang-sub000/infra/application/components/postgresgorm"
	"github.com/timelyrain333/bifang-sub000/infra/application/components/prometheus"
	"github.com/timelyrain333/bifang-sub000/infra/application/components/redis"
	"github.com/timelyrain333/bifang-sub000/infra/application/components/telemetry"
	"github.com/timelyrain333/bifang-sub000/infra/application/config"
	"github.com/timelyrain333/bifang-sub000/infra/application/consts"
	"github.com/timelyrain333/bifang-sub000/infra/application/core"
)

// 框架内置组件; 配置中 enabled=false 的不注册
func init() {
	Register(consts.COMPONENT_LOGGING, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.Logging == nil || !cfg.Logging.Enabled {
			return false, nil, nil
		}
		comp, err := logging.NewFactory().Create(cfg.Logging)
		return true, comp, err
	})
	Register(consts.COMPONENT_TELEMETRY, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.Telemetry == nil || !cfg.Telemetry.Enabled {
			return false, nil, nil
		}
		comp, err := telemetry.NewFactory().Create(cfg.Telemetry)
		return true, comp, err
	})
	Register(consts.COMPONENT_MYSQL_GORM, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.MySQLGORM == nil || !cfg.MySQLGORM.Enabled {
			return false, nil, nil
		}
		comp, err := mysqlgorm.NewFactory().Create(cfg.MySQLGORM)
		return true, comp, err
	})
	Register(consts.COMPONENT_POSTGRES_GORM, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.PostgresGORM == nil || !cfg.PostgresGORM.Enabled {
			return false, nil, nil
		}
		comp, err := postgresgorm.NewFactory().Create(cfg.PostgresGORM)
		return true, comp, err
	})
	Register(consts.COMPONENT_REDIS, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.Redis == nil || !cfg.Redis.Enabled {
			return false, nil, nil
		}
		comp, err := redis.NewFactory().Create(cfg.Redis)
		return true, comp, err
	})
	Register(consts.COMPONENT_PROMETHEUS, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.Prometheus == nil || !cfg.Prometheus.Enabled {
			return false, nil, nil
		}
		comp, err := prometheus.NewFactory().Create(cfg.Prometheus)
		return true, comp, err
	})
	Register(consts.COMPONENT_HTTP_CLIENTS, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.HTTPClients == nil || !cfg.HTTPClients.Enabled {
			return false, nil, nil
		}
		comp, err := http_client.NewFactory().Create(cfg.HTTPClients)
		return true, comp, err
	})
	Register(consts.COMPONENT_HTTP_SERVER, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.HTTPServer == nil || !cfg.HTTPServer.Enabled {
			return false, nil, nil
		}
		comp, err := http_server.NewFactory(c).Create(cfg.HTTPServer)
		if err != nil {
			return true, nil, err
		}
		return true, comp, nil
	})

	// telemetry 先于出入站 HTTP 启动, otel 全局 provider 才生效
	ExtendRuntimeDependencies(consts.COMPONENT_HTTP_SERVER, consts.COMPONENT_TELEMETRY)
	ExtendRuntimeDependencies(consts.COMPONENT_HTTP_CLIENTS, consts.COMPONENT_TELEMETRY)
}
