// Package daotest 提供基于内存 sqlite 的 gorm 连接, 供 dao 及上层测试使用
package daotest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/timelyrain333/bifang-sub000/infra/application/components/gormx"
	"github.com/timelyrain333/bifang-sub000/internal/consts"
	"github.com/timelyrain333/bifang-sub000/internal/model"
)

// NewDB 每次调用一个独立的内存库; 单连接, 避免 sqlite 写锁冲突
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormx.NewLogger("sqlite", "silent", 0)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.Task{}, &model.Execution{},
		&model.CloudAccount{}, &model.UserProviderConfig{}, &model.AIConfig{},
	))
	return db
}

// CreateTask 以合理默认值插入任务, mutate 可覆盖字段
func CreateTask(t testing.TB, db *gorm.DB, mutate func(*model.Task)) *model.Task {
	t.Helper()
	task := &model.Task{
		Name:        "task",
		PluginName:  "noop",
		TriggerType: consts.TriggerManual,
		Status:      consts.TaskPending,
		IsActive:    true,
		CreatedBy:   1,
		Config:      model.JSONMap{},
	}
	if mutate != nil {
		mutate(task)
	}
	require.NoError(t, db.Create(task).Error)
	return task
}

func CreateExecution(t testing.TB, db *gorm.DB, taskID int64, status consts.ExecutionStatus, startedAt time.Time) *model.Execution {
	t.Helper()
	e := &model.Execution{TaskID: taskID, Status: status, StartedAt: startedAt, Result: model.JSONMap{}}
	if status != consts.ExecRunning {
		fin := startedAt.Add(time.Second)
		e.FinishedAt = &fin
	}
	require.NoError(t, db.Create(e).Error)
	return e
}

func ReloadTask(t testing.TB, db *gorm.DB, id int64) *model.Task {
	t.Helper()
	var task model.Task
	require.NoError(t, db.First(&task, id).Error)
	return &task
}

func ReloadExecution(t testing.TB, db *gorm.DB, id int64) *model.Execution {
	t.Helper()
	var e model.Execution
	require.NoError(t, db.First(&e, id).Error)
	return &e
}
