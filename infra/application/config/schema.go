package config

import (
	"github.com/timelyrain333/bifang-sub000/infra/application/components/http_client"
	"github.com/timelyrain333/bifang-sub000/infra/application/components/http_server"
	"github.com/timelyrain333/bifang-sub000/infra/application/components/logging"
	"github.com/timelyrain333/bifang-sub000/infra/application/components/mysqlgorm"
	"github.com/timelyrain333/bifang-sub000/infra/application/components/postgresgorm"
	"github.com/timelyrain333/bifang-sub000/infra/application/components/prometheus"
	"github.com/timelyrain333/bifang-sub000/infra/application/components/redis"
	"github.com/timelyrain333/bifang-sub000/infra/application/components/telemetry"
)

// AppConfig 框架级配置; 业务配置放在 biz_config 小节
type AppConfig struct {
	APPInfo      *APPInfo                       `yaml:"app_info" json:"app_info"`
	Logging      *logging.LoggingConfig         `yaml:"logging" json:"logging"`
	MySQLGORM    *mysqlgorm.Config              `yaml:"mysql_gorm" json:"mysql_gorm"`
	PostgresGORM *postgresgorm.Config           `yaml:"postgres_gorm" json:"postgres_gorm"`
	Redis        *redis.Config                  `yaml:"redis" json:"redis"`
	Prometheus   *prometheus.Config             `yaml:"prometheus" json:"prometheus"`
	HTTPServer   *http_server.HTTPServerConfig  `yaml:"http_server" json:"http_server"`
	HTTPClients  *http_client.HTTPClientsConfig `yaml:"http_clients" json:"http_clients"`
	Telemetry    *telemetry.Config              `yaml:"telemetry" json:"telemetry"`

	BizConfig any `yaml:"biz_config" json:"biz_config"`
}

type APPInfo struct {
	APPName string `yaml:"app_name" json:"app_name"`
	ENV     string `yaml:"env" json:"env"`
}
