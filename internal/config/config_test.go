package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestBizConfig_YAMLKeepsDefaults(t *testing.T) {
	cfg := Default()
	raw := `
datasource: secops
executor:
  worker_pool_size: 8
  retry_delay: 5s
  transport: asynq
reaper:
  threshold: 10m
notify:
  redis_channel: bifang:notify
`
	require.NoError(t, yaml.Unmarshal([]byte(raw), cfg))
	cfg.ApplyDefaults()

	require.Equal(t, "secops", cfg.DataSource)
	require.Equal(t, 8, cfg.Executor.WorkerPoolSize)
	require.Equal(t, 5*time.Second, cfg.Executor.RetryDelay)
	require.Equal(t, "asynq", cfg.Executor.Transport)
	require.Equal(t, 3, cfg.Executor.MaxRetries)
	require.Equal(t, 2000, cfg.Executor.ErrorMaxLength)
	require.Equal(t, 10*time.Minute, cfg.Reaper.Threshold)
	require.True(t, cfg.Reaper.Enabled)
	require.True(t, cfg.Scheduler.ReloadOnStart)
	require.Equal(t, "bifang:notify", cfg.Notify.RedisChannel)
	require.Equal(t, 100, cfg.Notify.QueueSize)
}

func TestBizConfig_ApplyDefaultsFixesZeroes(t *testing.T) {
	cfg := &BizConfig{Executor: ExecutorConfig{SoftTimeout: time.Hour, HardTimeout: time.Minute, MaxRetries: -1}}
	cfg.ApplyDefaults()

	require.Equal(t, "bifang", cfg.DataSource)
	require.Equal(t, time.Second, cfg.Scheduler.PollInterval)
	require.Equal(t, time.Hour, cfg.Executor.HardTimeout, "hard timeout never shorter than soft")
	require.Equal(t, 0, cfg.Executor.MaxRetries)
	require.Equal(t, 256, cfg.Executor.QueueSize)
	require.Equal(t, 500, cfg.Reaper.BatchLimit)
}
