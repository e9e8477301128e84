package model

import (
	"encoding/json"
	"time"

	"github.com/timelyrain333/bifang-sub000/internal/consts"
)

// Execution 任务的一次运行, 创建即 running, 之后只会转为 success/failed 一次
type Execution struct {
	ID           int64                  `gorm:"primaryKey;autoIncrement" json:"id"`
	TaskID       int64                  `gorm:"not null;index" json:"task_id"`
	Status       consts.ExecutionStatus `gorm:"size:16;not null;index" json:"status"`
	StartedAt    time.Time              `gorm:"not null;index" json:"started_at"`
	FinishedAt   *time.Time             `json:"finished_at,omitempty"`
	Result       JSONMap                `json:"result"`
	ErrorMessage string                 `gorm:"type:text" json:"error_message"`
	Logs         string                 `gorm:"type:text" json:"logs"`
	TraceID      string                 `gorm:"size:64" json:"trace_id"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

func (Execution) TableName() string { return "executions" }

// ExecutionMeta 引擎写在 result._meta 中的元数据
type ExecutionMeta struct {
	TriggeredBy int64 `json:"triggered_by"`
	Manual      bool  `json:"manual"`
	Attempt     int   `json:"attempt"`
}

func (e *Execution) SetMeta(meta ExecutionMeta) {
	if e.Result == nil {
		e.Result = JSONMap{}
	}
	e.Result[consts.META_KEY] = map[string]any{
		"triggered_by": meta.TriggeredBy,
		"manual":       meta.Manual,
		"attempt":      meta.Attempt,
	}
}

// Meta 从数据库读回时数字是 float64, 统一经 JSON 转一次
func (e *Execution) Meta() ExecutionMeta {
	var meta ExecutionMeta
	if e == nil || e.Result == nil {
		return meta
	}
	raw, ok := e.Result[consts.META_KEY]
	if !ok {
		return meta
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return meta
	}
	_ = json.Unmarshal(b, &meta)
	return meta
}
