package mysqlgorm

import (
	"fmt"

	"github.com/timelyrain333/bifang-sub000/infra/application/core"
)

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Create(cfg *Config) (core.Component, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("mysql gorm component disabled")
	}
	if len(cfg.DataSources) == 0 {
		return nil, fmt.Errorf("mysql gorm component has no data_sources")
	}
	for name, ds := range cfg.DataSources {
		if ds != nil && ds.MigrateEnabled && ds.MigrateDir == "" {
			return nil, fmt.Errorf("datasource %s: migrate_dir required when migrate_enabled", name)
		}
	}
	return NewGormComponent(cfg), nil
}
