package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timelyrain333/bifang-sub000/internal/config"
	"github.com/timelyrain333/bifang-sub000/internal/consts"
	"github.com/timelyrain333/bifang-sub000/internal/dao/daotest"
	"github.com/timelyrain333/bifang-sub000/internal/model"
)

func newTestReaper(env *testEnv, now time.Time) *Reaper {
	r := NewReaper(config.ReaperConfig{Threshold: 30 * time.Minute, BatchLimit: 2, Interval: time.Hour})
	r.ExecDao = env.execs
	r.TaskDao = env.tasks
	r.Bus = env.bus
	r.now = func() time.Time { return now }
	return r
}

func TestReaper_SweepIsIdempotent(t *testing.T) {
	env := newTestEnv(t, testExecutorConfig())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	stuck := daotest.CreateTask(t, env.db, func(x *model.Task) { x.Status = consts.TaskRunning; x.CreatedBy = 4 })
	paused := daotest.CreateTask(t, env.db, func(x *model.Task) { x.Status = consts.TaskPaused })
	fresh := daotest.CreateTask(t, env.db, func(x *model.Task) { x.Status = consts.TaskRunning })
	e1 := daotest.CreateExecution(t, env.db, stuck.ID, consts.ExecRunning, now.Add(-2*time.Hour))
	e2 := daotest.CreateExecution(t, env.db, paused.ID, consts.ExecRunning, now.Add(-time.Hour))
	e3 := daotest.CreateExecution(t, env.db, stuck.ID, consts.ExecRunning, now.Add(-45*time.Minute))
	young := daotest.CreateExecution(t, env.db, fresh.ID, consts.ExecRunning, now.Add(-time.Minute))
	sub := env.bus.Subscribe(4)

	r := newTestReaper(env, now)

	dry, err := r.Sweep(ctx, 0, true)
	require.NoError(t, err)
	assert.True(t, dry.DryRun)
	assert.Len(t, dry.Candidates, 2, "dry run lists a single batch")
	assert.Zero(t, dry.ExecutionsFailed)
	assert.Equal(t, consts.ExecRunning, daotest.ReloadExecution(t, env.db, e1.ID).Status)

	rep, err := r.Sweep(ctx, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.ExecutionsFailed)
	assert.Equal(t, 1, rep.TasksRepaired)
	for _, id := range []int64{e1.ID, e2.ID, e3.ID} {
		e := daotest.ReloadExecution(t, env.db, id)
		assert.Equal(t, consts.ExecFailed, e.Status)
		assert.Equal(t, consts.STUCK_EXECUTION_MESSAGE, e.ErrorMessage)
		assert.NotNil(t, e.FinishedAt)
	}
	assert.Equal(t, consts.ExecRunning, daotest.ReloadExecution(t, env.db, young.ID).Status)
	assert.Equal(t, consts.TaskFailed, daotest.ReloadTask(t, env.db, stuck.ID).Status)
	assert.Equal(t, consts.TaskPaused, daotest.ReloadTask(t, env.db, paused.ID).Status)
	assert.Equal(t, consts.TaskRunning, daotest.ReloadTask(t, env.db, fresh.ID).Status)
	assert.Equal(t, []string{"failed"}, drainStatuses(sub))

	again, err := r.Sweep(ctx, 0, false)
	require.NoError(t, err)
	assert.Zero(t, again.ExecutionsFailed)
	assert.Empty(t, again.Candidates)
}

func TestReaper_CustomThreshold(t *testing.T) {
	env := newTestEnv(t, testExecutorConfig())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	task := daotest.CreateTask(t, env.db, func(x *model.Task) { x.Status = consts.TaskRunning })
	daotest.CreateExecution(t, env.db, task.ID, consts.ExecRunning, now.Add(-10*time.Minute))

	rep, err := newTestReaper(env, now).Sweep(context.Background(), 5*time.Minute, false)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ExecutionsFailed)
	assert.Equal(t, now.Add(-5*time.Minute), rep.Cutoff)
}
