package config

import (
	"fmt"
	"os"
)

type ConfigManager struct {
	loader    *Loader
	appConfig *AppConfig
}

func NewConfigManager(env string, configPath string) *ConfigManager {
	return &ConfigManager{loader: NewLoader(env, configPath)}
}

func (cm *ConfigManager) SetBizConfig(b any) { cm.loader.SetBizConfig(b) }

func (cm *ConfigManager) GetConfig() *AppConfig { return cm.appConfig }

func (cm *ConfigManager) BizConfig() any {
	if cm.appConfig == nil {
		return nil
	}
	return cm.appConfig.BizConfig
}

func (cm *ConfigManager) LoadConfig() error {
	path := cm.loader.configPath
	if len(path) > 255 {
		return fmt.Errorf("config file path is too long")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file does not exist: %s", path)
	}
	cfg, err := cm.loader.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.APPInfo.APPName == "" {
		return fmt.Errorf("app_info.app_name is required")
	}
	cm.appConfig = cfg
	return nil
}
