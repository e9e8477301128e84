package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timelyrain333/bifang-sub000/internal/consts"
	"github.com/timelyrain333/bifang-sub000/internal/dao/daotest"
	"github.com/timelyrain333/bifang-sub000/internal/model"
	"github.com/timelyrain333/bifang-sub000/internal/resolver"
)

func TestEngine_Success(t *testing.T) {
	env := newTestEnv(t, testExecutorConfig())
	ctx := context.Background()
	task := daotest.CreateTask(t, env.db, func(x *model.Task) { x.PluginName = pluginOK; x.CreatedBy = 7 })
	sub := env.bus.Subscribe(7)

	res, err := env.engine.ExecuteTask(ctx, task.ID, TriggerOpts{UserID: 9, Manual: true})
	require.NoError(t, err)
	require.Equal(t, OutcomeDispatched, res.Outcome.Kind)
	require.Equal(t, consts.ExecSuccess, res.Status)

	exec := daotest.ReloadExecution(t, env.db, res.ExecutionID)
	assert.Equal(t, consts.ExecSuccess, exec.Status)
	assert.NotNil(t, exec.FinishedAt)
	assert.NotEmpty(t, exec.TraceID)
	assert.Contains(t, exec.Logs, "plugin line")
	assert.Equal(t, true, exec.Result["success"])
	meta := exec.Meta()
	assert.Equal(t, int64(9), meta.TriggeredBy)
	assert.True(t, meta.Manual)
	assert.Equal(t, 1, meta.Attempt)

	reloaded := daotest.ReloadTask(t, env.db, task.ID)
	assert.Equal(t, consts.TaskSuccess, reloaded.Status)
	assert.NotNil(t, reloaded.LastRunAt)

	assert.Equal(t, []string{"running", "success"}, drainStatuses(sub))
}

func TestEngine_PanicIsRetryableFailure(t *testing.T) {
	env := newTestEnv(t, testExecutorConfig())
	task := daotest.CreateTask(t, env.db, func(x *model.Task) { x.PluginName = pluginPanic })

	res, err := env.engine.ExecuteTask(context.Background(), task.ID, TriggerOpts{Manual: true})
	require.Error(t, err)
	require.True(t, IsRetryable(err))

	exec := daotest.ReloadExecution(t, env.db, res.ExecutionID)
	assert.Equal(t, consts.ExecFailed, exec.Status)
	assert.Contains(t, exec.ErrorMessage, "panic")
	assert.Contains(t, exec.ErrorMessage, "boom")
	assert.Equal(t, consts.TaskFailed, daotest.ReloadTask(t, env.db, task.ID).Status)
}

func TestEngine_ReportedFailureIsNotRetried(t *testing.T) {
	env := newTestEnv(t, testExecutorConfig())
	task := daotest.CreateTask(t, env.db, func(x *model.Task) { x.PluginName = pluginFalse })

	res, err := env.engine.ExecuteTask(context.Background(), task.ID, TriggerOpts{Manual: true})
	require.NoError(t, err)
	require.Equal(t, consts.ExecFailed, res.Status)
	assert.Equal(t, "nothing to scan", daotest.ReloadExecution(t, env.db, res.ExecutionID).ErrorMessage)
}

func TestEngine_NonConformingResult(t *testing.T) {
	env := newTestEnv(t, testExecutorConfig())
	task := daotest.CreateTask(t, env.db, func(x *model.Task) { x.PluginName = pluginBad })

	res, err := env.engine.ExecuteTask(context.Background(), task.ID, TriggerOpts{Manual: true})
	require.True(t, IsRetryable(err))
	exec := daotest.ReloadExecution(t, env.db, res.ExecutionID)
	assert.Equal(t, consts.ExecFailed, exec.Status)
	assert.Contains(t, exec.ErrorMessage, "invalid result")
}

func TestEngine_UnknownPluginFailsWithoutRetry(t *testing.T) {
	env := newTestEnv(t, testExecutorConfig())
	task := daotest.CreateTask(t, env.db, func(x *model.Task) { x.PluginName = "does_not_exist" })

	res, err := env.engine.ExecuteTask(context.Background(), task.ID, TriggerOpts{Manual: true})
	require.NoError(t, err)
	assert.Equal(t, consts.ExecFailed, res.Status)
	assert.Contains(t, res.Error, "plugin not found")
}

func TestEngine_ErrorMessageTruncated(t *testing.T) {
	cfg := testExecutorConfig()
	cfg.ErrorMaxLength = 20
	env := newTestEnv(t, cfg)
	task := daotest.CreateTask(t, env.db, func(x *model.Task) { x.PluginName = pluginFail })

	res, _ := env.engine.ExecuteTask(context.Background(), task.ID, TriggerOpts{Manual: true})
	msg := daotest.ReloadExecution(t, env.db, res.ExecutionID).ErrorMessage
	assert.Len(t, []rune(msg), 20)
}

func TestEngine_Skips(t *testing.T) {
	env := newTestEnv(t, testExecutorConfig())
	ctx := context.Background()
	inactive := daotest.CreateTask(t, env.db, func(x *model.Task) { x.PluginName = pluginOK; x.IsActive = false })
	manual := daotest.CreateTask(t, env.db, func(x *model.Task) { x.PluginName = pluginOK })

	res, err := env.engine.ExecuteTask(ctx, inactive.ID, TriggerOpts{Manual: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome.Kind)

	// 定时触发一个 manual 任务
	res, err = env.engine.ExecuteTask(ctx, manual.ID, TriggerOpts{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome.Kind)

	res, err = env.engine.ExecuteTask(ctx, 424242, TriggerOpts{Manual: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome.Kind)

	var n int64
	require.NoError(t, env.db.Model(&model.Execution{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestEngine_ResolvesCredentials(t *testing.T) {
	env := newTestEnv(t, testExecutorConfig())
	acc := &model.CloudAccount{UserID: 7, Provider: "AWS", IsActive: true,
		Config: model.JSONMap{"access_key_id": "AKIA-ACCOUNT", "region": "us-east-1"}}
	require.NoError(t, env.db.Create(acc).Error)
	require.NoError(t, env.db.Create(&model.UserProviderConfig{UserID: 9, Provider: "aws", IsActive: true, IsDefault: true,
		Config: model.JSONMap{"secret_access_key": "user-secret", "region": "eu-west-1"}}).Error)
	require.NoError(t, env.db.Create(&model.AIConfig{UserID: 9, Provider: "openai", Model: "m", Enabled: true}).Error)

	task := daotest.CreateTask(t, env.db, func(x *model.Task) {
		x.PluginName = pluginAWS
		x.CreatedBy = 7
		x.CloudAccountID = &acc.ID
		x.Config = model.JSONMap{"bucket": "logs"}
	})

	res, err := env.engine.ExecuteTask(context.Background(), task.ID, TriggerOpts{UserID: 9, Manual: true})
	require.NoError(t, err)
	data := res.Result.Data
	assert.Equal(t, "logs", data["bucket"])
	assert.Equal(t, "AKIA-ACCOUNT", data["access_key_id"])
	assert.Equal(t, "us-east-1", data["region"], "account wins over user default")
	assert.Equal(t, "user-secret", data["secret_access_key"])
	assert.Contains(t, data, resolver.AIConfigKey)
}

func TestEngine_HardTimeoutLeavesExecutionRunning(t *testing.T) {
	cfg := testExecutorConfig()
	cfg.SoftTimeout = 10 * time.Millisecond
	cfg.HardTimeout = 50 * time.Millisecond
	env := newTestEnv(t, cfg)
	t.Cleanup(func() {
		select {
		case <-hangRelease:
		default:
			close(hangRelease)
		}
	})
	task := daotest.CreateTask(t, env.db, func(x *model.Task) { x.PluginName = pluginHang })

	res, err := env.engine.ExecuteTask(context.Background(), task.ID, TriggerOpts{Manual: true})
	require.True(t, errors.Is(err, ErrHardTimeout))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, consts.ExecRunning, daotest.ReloadExecution(t, env.db, res.ExecutionID).Status)
	assert.Equal(t, consts.TaskRunning, daotest.ReloadTask(t, env.db, task.ID).Status)
}

func TestEngine_PausedTaskStaysPaused(t *testing.T) {
	env := newTestEnv(t, testExecutorConfig())
	task := daotest.CreateTask(t, env.db, func(x *model.Task) { x.PluginName = pluginOK; x.Status = consts.TaskPaused })

	_, err := env.engine.ExecuteTask(context.Background(), task.ID, TriggerOpts{Manual: true})
	require.NoError(t, err)
	assert.Equal(t, consts.TaskPaused, daotest.ReloadTask(t, env.db, task.ID).Status)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "安全", truncate("安全运营", 2))
	assert.True(t, strings.HasPrefix(truncate(longErrorMsg, 5), "the u"))
}
