package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/timelyrain333/bifang-sub000/infra/application/consts"
)

type Loader struct {
	env        string
	configPath string
	bizConfig  any // 业务方传入的指针, 填充 biz_config 小节
}

func NewLoader(env string, configPath string) *Loader {
	if env == "" {
		env = consts.ENV_DEVELOPMENT
	}
	if configPath == "" {
		configPath = consts.DEFAULT_CONFIG_PATH
	}
	return &Loader{env: env, configPath: configPath}
}

// SetBizConfig 必须传指针, LoadConfig 之前调用
func (l *Loader) SetBizConfig(b any) {
	if b == nil {
		return
	}
	if reflect.TypeOf(b).Kind() != reflect.Ptr {
		panic("SetBizConfig expects a pointer, e.g. &MyBizConfig{}")
	}
	l.bizConfig = b
}

// LoadConfig 先整体解析 AppConfig, 再把 biz_config 子树二次解码到业务指针;
// 直接把指针放进 any 字段 yaml.v3 会替换成 map
func (l *Loader) LoadConfig() (*AppConfig, error) {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))

	var cfg AppConfig
	ext := strings.ToLower(filepath.Ext(l.configPath))
	if err := unmarshal(ext, data, &cfg); err != nil {
		return nil, err
	}

	if l.bizConfig != nil {
		if cfg.BizConfig != nil {
			raw, err := marshal(ext, cfg.BizConfig)
			if err != nil {
				return nil, fmt.Errorf("re-marshal biz_config failed: %w", err)
			}
			if err := unmarshal(ext, raw, l.bizConfig); err != nil {
				return nil, fmt.Errorf("decode biz_config failed: %w", err)
			}
		}
		cfg.BizConfig = l.bizConfig
	}

	if cfg.APPInfo == nil {
		cfg.APPInfo = &APPInfo{}
	}
	if cfg.APPInfo.ENV == "" {
		cfg.APPInfo.ENV = l.env
	}
	l.injectServiceName(&cfg)
	return &cfg, nil
}

// injectServiceName 把 app_name 注入到需要 service name 的组件
func (l *Loader) injectServiceName(cfg *AppConfig) {
	name := cfg.APPInfo.APPName
	if name == "" {
		return
	}
	if cfg.HTTPServer != nil {
		cfg.HTTPServer.ServiceName = name
	}
	if cfg.Telemetry != nil && cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = name
	}
}

func unmarshal(ext string, data []byte, out any) error {
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
	return nil
}

func marshal(ext string, v any) ([]byte, error) {
	if ext == ".json" {
		return json.Marshal(v)
	}
	return yaml.Marshal(v)
}
