package model

import (
	"time"

	"github.com/timelyrain333/bifang-sub000/internal/consts"
)

// Task 一个绑定插件的任务定义; Status 只是缓存, 以最近一次 Execution 为准
type Task struct {
	ID             int64              `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string             `gorm:"size:128;not null" json:"name"`
	Description    string             `gorm:"size:512" json:"description"`
	PluginName     string             `gorm:"size:128;not null;index" json:"plugin_name"`
	TriggerType    consts.TriggerType `gorm:"size:16;not null" json:"trigger_type"`
	Schedule       string             `gorm:"size:128" json:"schedule"` // cron 5 字段或 interval 秒数
	Config         JSONMap            `json:"config"`
	Status         consts.TaskStatus  `gorm:"size:16;not null;index" json:"status"`
	IsActive       bool               `gorm:"not null" json:"is_active"`
	CreatedBy      int64              `gorm:"index" json:"created_by"`
	CloudAccountID *int64             `json:"cloud_account_id,omitempty"`
	LastRunAt      *time.Time         `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time         `json:"next_run_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func (Task) TableName() string { return "tasks" }

// Schedulable 是否应进入调度表
func (t *Task) Schedulable() bool {
	if t == nil || !t.IsActive {
		return false
	}
	return t.TriggerType == consts.TriggerCron || t.TriggerType == consts.TriggerInterval
}
