package prometheus

type Config struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	Address          string `yaml:"address" json:"address"` // e.g. ":9090"
	Path             string `yaml:"path" json:"path"`
	Namespace        string `yaml:"namespace" json:"namespace"`
	Subsystem        string `yaml:"subsystem" json:"subsystem"`
	CollectGoMetrics *bool  `yaml:"collect_go_metrics" json:"collect_go_metrics"` // nil 视为 true
	CollectProcess   *bool  `yaml:"collect_process" json:"collect_process"`
}

func (c *Config) setDefaults() {
	if c.Address == "" {
		c.Address = ":9090"
	}
	if c.Path == "" {
		c.Path = "/metrics"
	}
	on := true
	if c.CollectGoMetrics == nil {
		c.CollectGoMetrics = &on
	}
	if c.CollectProcess == nil {
		c.CollectProcess = &on
	}
}
