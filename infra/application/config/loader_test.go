package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type bizSection struct {
	Datasource string `yaml:"datasource"`
	Scheduler  struct {
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"scheduler"`
	Untouched string `yaml:"untouched"`
}

func TestLoadConfig_BizSectionAndServiceName(t *testing.T) {
	t.Setenv("BIFANG_DB_PASSWORD", "s3cret")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app_info:
  app_name: bifang
http_server:
  enabled: true
telemetry:
  enabled: false
mysql_gorm:
  enabled: true
  data_sources:
    bifang:
      password: ${BIFANG_DB_PASSWORD}
biz_config:
  datasource: main
  scheduler:
    poll_interval: 2s
`), 0o644))

	biz := &bizSection{Untouched: "default"}
	cm := NewConfigManager("test", path)
	cm.SetBizConfig(biz)
	require.NoError(t, cm.LoadConfig())

	cfg := cm.GetConfig()
	require.Equal(t, "test", cfg.APPInfo.ENV)
	require.Equal(t, "bifang", cfg.HTTPServer.ServiceName)
	require.Equal(t, "bifang", cfg.Telemetry.ServiceName)
	require.Equal(t, "s3cret", cfg.MySQLGORM.DataSources["bifang"].Password)
	require.Same(t, biz, cm.BizConfig())
	require.Equal(t, "main", biz.Datasource)
	require.Equal(t, 2*time.Second, biz.Scheduler.PollInterval)
	require.Equal(t, "default", biz.Untouched)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	require.Error(t, NewConfigManager("", filepath.Join(t.TempDir(), "nope.yaml")).LoadConfig())
}
