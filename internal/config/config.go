package config

import (
	"time"

	"github.com/timelyrain333/bifang-sub000/internal/consts"
)

type SchedulerConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	ReloadOnStart bool          `yaml:"reload_on_start"`
}

type ExecutorConfig struct {
	WorkerPoolSize int           `yaml:"worker_pool_size"`
	QueueSize      int           `yaml:"queue_size"`
	SoftTimeout    time.Duration `yaml:"soft_timeout"` // 通过 ctx deadline 传给插件, 插件自行遵守
	HardTimeout    time.Duration `yaml:"hard_timeout"` // 超过后放弃等待, 交给 reaper 修复
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	ErrorMaxLength int           `yaml:"error_max_length"`
	Transport      string        `yaml:"transport"`   // local | asynq
	AsynqQueue     string        `yaml:"asynq_queue"` // transport=asynq 时使用
}

type ReaperConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	Threshold  time.Duration `yaml:"threshold"`
	BatchLimit int           `yaml:"batch_limit"`
}

type NotifyConfig struct {
	QueueSize         int           `yaml:"queue_size"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	RedisChannel      string        `yaml:"redis_channel"` // 为空则只在进程内投递
}

// BizConfig 对应配置文件中的 biz_config 小节
type BizConfig struct {
	DataSource string          `yaml:"datasource"`
	Scheduler  SchedulerConfig `yaml:"scheduler"`
	Executor   ExecutorConfig  `yaml:"executor"`
	Reaper     ReaperConfig    `yaml:"reaper"`
	Notify     NotifyConfig    `yaml:"notify"`
}

var bizConfig = Default()

// GetBizConfig 返回进程级 biz 配置指针; main 中交给 app.SetBizConfig, Boot 时被填充
func GetBizConfig() *BizConfig { return bizConfig }

func Default() *BizConfig {
	return &BizConfig{
		DataSource: "bifang",
		Scheduler:  SchedulerConfig{PollInterval: time.Second, ReloadOnStart: true},
		Executor: ExecutorConfig{
			WorkerPoolSize: 4,
			QueueSize:      256,
			SoftTimeout:    25 * time.Minute,
			HardTimeout:    30 * time.Minute,
			MaxRetries:     3,
			RetryDelay:     60 * time.Second,
			ErrorMaxLength: 2000,
			Transport:      consts.TRANSPORT_LOCAL,
			AsynqQueue:     "bifang",
		},
		Reaper: ReaperConfig{Enabled: true, Interval: 5 * time.Minute, Threshold: 30 * time.Minute, BatchLimit: 500},
		Notify: NotifyConfig{QueueSize: 100, HeartbeatInterval: 30 * time.Second},
	}
}

// ApplyDefaults 把显式写成 0 的字段恢复为默认值
func (c *BizConfig) ApplyDefaults() {
	d := Default()
	if c.DataSource == "" {
		c.DataSource = d.DataSource
	}
	if c.Scheduler.PollInterval <= 0 {
		c.Scheduler.PollInterval = d.Scheduler.PollInterval
	}
	c.Executor.applyDefaults(d.Executor)
	if c.Reaper.Interval <= 0 {
		c.Reaper.Interval = d.Reaper.Interval
	}
	if c.Reaper.Threshold <= 0 {
		c.Reaper.Threshold = d.Reaper.Threshold
	}
	if c.Reaper.BatchLimit <= 0 {
		c.Reaper.BatchLimit = d.Reaper.BatchLimit
	}
	if c.Notify.QueueSize <= 0 {
		c.Notify.QueueSize = d.Notify.QueueSize
	}
	if c.Notify.HeartbeatInterval <= 0 {
		c.Notify.HeartbeatInterval = d.Notify.HeartbeatInterval
	}
}

func (e *ExecutorConfig) applyDefaults(d ExecutorConfig) {
	if e.WorkerPoolSize <= 0 {
		e.WorkerPoolSize = d.WorkerPoolSize
	}
	if e.QueueSize <= 0 {
		e.QueueSize = d.QueueSize
	}
	if e.SoftTimeout <= 0 {
		e.SoftTimeout = d.SoftTimeout
	}
	if e.HardTimeout <= 0 {
		e.HardTimeout = d.HardTimeout
	}
	if e.HardTimeout < e.SoftTimeout {
		e.HardTimeout = e.SoftTimeout
	}
	if e.MaxRetries < 0 {
		e.MaxRetries = 0
	}
	if e.RetryDelay <= 0 {
		e.RetryDelay = d.RetryDelay
	}
	if e.ErrorMaxLength <= 0 {
		e.ErrorMaxLength = d.ErrorMaxLength
	}
	if e.Transport == "" {
		e.Transport = d.Transport
	}
	if e.AsynqQueue == "" {
		e.AsynqQueue = d.AsynqQueue
	}
}
