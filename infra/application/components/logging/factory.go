package logging

import (
	"fmt"

	"github.com/timelyrain333/bifang-sub000/infra/application/core"
)

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Create(cfg *LoggingConfig) (core.Component, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("logging component is disabled")
	}
	cfg.setDefaults()
	if rc := cfg.RotateConfig; rc != nil && rc.Enabled && rc.MaxAge < 0 {
		return nil, fmt.Errorf("logging.rotate_config.max_age must be >= 0")
	}
	return NewLoggerComponent(cfg), nil
}
