package dao

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/timelyrain333/bifang-sub000/internal/consts"
	"github.com/timelyrain333/bifang-sub000/internal/dao/daotest"
	"github.com/timelyrain333/bifang-sub000/internal/model"
)

func TestTaskDao_ListSchedulable(t *testing.T) {
	db := daotest.NewDB(t)
	ctx := context.Background()
	d := NewTaskDaoFromDB(db)
	require.NoError(t, d.Start(ctx))

	cron := daotest.CreateTask(t, db, func(x *model.Task) { x.TriggerType = consts.TriggerCron; x.Schedule = "*/5 * * * *" })
	iv := daotest.CreateTask(t, db, func(x *model.Task) { x.TriggerType = consts.TriggerInterval; x.Schedule = "120" })
	daotest.CreateTask(t, db, func(x *model.Task) { x.TriggerType = consts.TriggerManual })
	daotest.CreateTask(t, db, func(x *model.Task) { x.TriggerType = consts.TriggerCron; x.IsActive = false })

	list, err := d.ListSchedulable(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, cron.ID, list[0].ID)
	require.Equal(t, iv.ID, list[1].ID)

	_, err = d.Get(ctx, 9999)
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestTaskDao_MarkStartedKeepsPaused(t *testing.T) {
	db := daotest.NewDB(t)
	ctx := context.Background()
	d := NewTaskDaoFromDB(db)
	require.NoError(t, d.Start(ctx))

	paused := daotest.CreateTask(t, db, func(x *model.Task) { x.Status = consts.TaskPaused })
	now := time.Now()
	require.NoError(t, d.MarkStarted(ctx, paused.ID, now))
	got := daotest.ReloadTask(t, db, paused.ID)
	require.Equal(t, consts.TaskPaused, got.Status)
	require.NotNil(t, got.LastRunAt)

	ok, err := d.CompareAndSetStatus(ctx, paused.ID, []consts.TaskStatus{consts.TaskRunning}, consts.TaskFailed)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExecutionDao_FinishIsConditional(t *testing.T) {
	db := daotest.NewDB(t)
	ctx := context.Background()
	d := NewExecutionDaoFromDB(db)
	require.NoError(t, d.Start(ctx))

	task := daotest.CreateTask(t, db, func(x *model.Task) { x.Status = consts.TaskRunning })
	e := &model.Execution{TaskID: task.ID}
	require.NoError(t, d.Create(ctx, e))
	require.Equal(t, consts.ExecRunning, e.Status)

	fin := time.Now()
	e.Status, e.FinishedAt, e.Logs = consts.ExecSuccess, &fin, "ok"
	e.Result = model.JSONMap{"success": true}
	done, err := d.Finish(ctx, e, consts.TaskSuccess)
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, consts.TaskSuccess, daotest.ReloadTask(t, db, task.ID).Status)

	// 终态不会被再次改写
	e.Status = consts.ExecFailed
	done, err = d.Finish(ctx, e, consts.TaskFailed)
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, consts.ExecSuccess, daotest.ReloadExecution(t, db, e.ID).Status)
	require.Equal(t, consts.TaskSuccess, daotest.ReloadTask(t, db, task.ID).Status)

	latest, err := d.Latest(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, e.ID, latest.ID)
}

func TestExecutionDao_FailStuck(t *testing.T) {
	db := daotest.NewDB(t)
	ctx := context.Background()
	d := NewExecutionDaoFromDB(db)
	require.NoError(t, d.Start(ctx))
	now := time.Now()

	running := daotest.CreateTask(t, db, func(x *model.Task) { x.Status = consts.TaskRunning })
	paused := daotest.CreateTask(t, db, func(x *model.Task) { x.Status = consts.TaskPaused })
	old1 := daotest.CreateExecution(t, db, running.ID, consts.ExecRunning, now.Add(-time.Hour))
	old2 := daotest.CreateExecution(t, db, paused.ID, consts.ExecRunning, now.Add(-time.Hour))
	daotest.CreateExecution(t, db, running.ID, consts.ExecSuccess, now.Add(-2*time.Hour))

	stuck, err := d.ListStuck(ctx, now.Add(-30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stuck, 2)

	rep, err := d.FailStuck(ctx, old1, consts.STUCK_EXECUTION_MESSAGE, now)
	require.NoError(t, err)
	require.Equal(t, StuckRepair{ExecutionFailed: true, TaskRepaired: true}, rep)

	rep, err = d.FailStuck(ctx, old2, consts.STUCK_EXECUTION_MESSAGE, now)
	require.NoError(t, err)
	require.Equal(t, StuckRepair{ExecutionFailed: true}, rep)
	require.Equal(t, consts.TaskPaused, daotest.ReloadTask(t, db, paused.ID).Status)

	// 第二次是空操作
	rep, err = d.FailStuck(ctx, old1, consts.STUCK_EXECUTION_MESSAGE, now)
	require.NoError(t, err)
	require.Equal(t, StuckRepair{}, rep)

	got := daotest.ReloadExecution(t, db, old1.ID)
	require.Equal(t, consts.ExecFailed, got.Status)
	require.Equal(t, consts.STUCK_EXECUTION_MESSAGE, got.ErrorMessage)
	require.NotNil(t, got.FinishedAt)
}

func TestExecutionDao_FailStuckLeavesTaskWithNewerRun(t *testing.T) {
	db := daotest.NewDB(t)
	ctx := context.Background()
	d := NewExecutionDaoFromDB(db)
	require.NoError(t, d.Start(ctx))
	now := time.Now()

	task := daotest.CreateTask(t, db, func(x *model.Task) { x.Status = consts.TaskRunning })
	old := daotest.CreateExecution(t, db, task.ID, consts.ExecRunning, now.Add(-time.Hour))
	daotest.CreateExecution(t, db, task.ID, consts.ExecRunning, now.Add(-time.Minute))

	rep, err := d.FailStuck(ctx, old, consts.STUCK_EXECUTION_MESSAGE, now)
	require.NoError(t, err)
	require.True(t, rep.ExecutionFailed)
	require.False(t, rep.TaskRepaired)
	require.Equal(t, consts.TaskRunning, daotest.ReloadTask(t, db, task.ID).Status)
}

func TestCredentialDao_Lookups(t *testing.T) {
	db := daotest.NewDB(t)
	ctx := context.Background()
	d := NewCredentialDaoFromDB(db)
	require.NoError(t, d.Start(ctx))

	require.NoError(t, db.Create(&model.UserProviderConfig{UserID: 7, Provider: "aws", Config: model.JSONMap{"region": "us-east-1"}, IsActive: true}).Error)
	require.NoError(t, db.Create(&model.UserProviderConfig{UserID: 7, Provider: "aws", Config: model.JSONMap{"region": "eu-west-1"}, IsActive: true, IsDefault: true}).Error)
	require.NoError(t, db.Create(&model.AIConfig{UserID: 7, Provider: "openai", Model: "gpt", Enabled: false}).Error)

	c, err := d.DefaultProviderConfig(ctx, 7, "aws")
	require.NoError(t, err)
	require.Equal(t, "eu-west-1", c.Config["region"])

	_, err = d.DefaultProviderConfig(ctx, 7, "aliyun")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = d.EnabledAIConfig(ctx, 7)
	require.ErrorIs(t, err, ErrNotFound)
}
