package logging

import "time"

type LoggingConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Level   string `yaml:"level" json:"level"`   // debug|info|warn|error
	Format  string `yaml:"format" json:"format"` // json|console
	// stdout | stderr | file | 任意文件路径
	Output       string        `yaml:"output" json:"output"`
	FileConfig   *FileConfig   `yaml:"file_config,omitempty" json:"file_config,omitempty"`
	RotateConfig *RotateConfig `yaml:"rotate_config,omitempty" json:"rotate_config,omitempty"`
}

type FileConfig struct {
	Dir      string `yaml:"dir" json:"dir"`
	Filename string `yaml:"filename" json:"filename"` // 不含 .log 后缀
}

// RotateConfig: RotateInterval>0 按时间切分, 否则按大小交给 lumberjack
type RotateConfig struct {
	Enabled        bool          `yaml:"enabled" json:"enabled"`
	RotateInterval time.Duration `yaml:"rotate_interval" json:"rotate_interval"`
	MaxSizeMB      int           `yaml:"max_size_mb" json:"max_size_mb"`
	MaxAge         time.Duration `yaml:"max_age" json:"max_age"`
	CleanupEnabled bool          `yaml:"cleanup_enabled" json:"cleanup_enabled"`
}

func (c *LoggingConfig) setDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
	if c.Output == "" {
		c.Output = "stdout"
	}
	if c.Output == "file" && c.FileConfig == nil {
		c.FileConfig = &FileConfig{Dir: "./logs", Filename: "bifang"}
	}
	if c.RotateConfig != nil && c.RotateConfig.MaxSizeMB <= 0 {
		c.RotateConfig.MaxSizeMB = 100
	}
}
