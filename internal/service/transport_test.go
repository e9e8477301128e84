package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timelyrain333/bifang-sub000/internal/consts"
	"github.com/timelyrain333/bifang-sub000/internal/dao/daotest"
	"github.com/timelyrain333/bifang-sub000/internal/model"
)

func newLocalTransport(t *testing.T, env *testEnv) *LocalTransport {
	t.Helper()
	ctx := context.Background()
	pool := NewWorkerPool(2, 8)
	require.NoError(t, pool.Start(ctx))
	tr := NewLocalTransport(env.engine.Config())
	tr.Pool = pool
	tr.Engine = env.engine
	require.NoError(t, tr.Start(ctx))
	t.Cleanup(func() {
		_ = tr.Stop(context.Background())
		_ = pool.Stop(context.Background())
	})
	return tr
}

func TestLocalTransport_RetriesPluginErrors(t *testing.T) {
	env := newTestEnv(t, testExecutorConfig())
	tr := newLocalTransport(t, env)
	task := daotest.CreateTask(t, env.db, func(x *model.Task) { x.PluginName = pluginCount })
	countRuns.Store(0)

	h, err := tr.Submit(context.Background(), ExecRequest{TaskID: task.ID, Manual: true})
	require.NoError(t, err)
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("retry chain did not finish")
	}

	// 句柄在最后一次重试结束后才 Done: 首次 + MaxRetries 次
	assert.Equal(t, int32(3), countRuns.Load())
	assert.Equal(t, 0, tr.PendingRetries())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(3), countRuns.Load())

	var execs []model.Execution
	require.NoError(t, env.db.Where("task_id = ?", task.ID).Order("id").Find(&execs).Error)
	require.Len(t, execs, 3)
	for i, e := range execs {
		assert.Equal(t, consts.ExecFailed, e.Status)
		assert.Equal(t, i+1, e.Meta().Attempt)
	}
}

func TestLocalTransport_Status(t *testing.T) {
	env := newTestEnv(t, testExecutorConfig())
	tr := newLocalTransport(t, env)
	task := daotest.CreateTask(t, env.db, func(x *model.Task) { x.PluginName = pluginOK })

	h, err := tr.Submit(context.Background(), ExecRequest{TaskID: task.ID, Manual: true})
	require.NoError(t, err)
	<-h.Done()

	st, err := tr.Status(context.Background(), h.ID())
	require.NoError(t, err)
	assert.Equal(t, "done", st.State)
	assert.Equal(t, string(consts.ExecSuccess), st.Status)
	assert.NotZero(t, st.ExecutionID)
	assert.Equal(t, task.ID, st.TaskID)

	_, err = tr.Status(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrHandleNotFound))
}

func TestLocalTransport_StopEndsPendingRetry(t *testing.T) {
	cfg := testExecutorConfig()
	cfg.RetryDelay = time.Hour
	env := newTestEnv(t, cfg)
	tr := newLocalTransport(t, env)
	task := daotest.CreateTask(t, env.db, func(x *model.Task) { x.PluginName = pluginFail })

	h, err := tr.Submit(context.Background(), ExecRequest{TaskID: task.ID, Manual: true})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return tr.PendingRetries() == 1 }, time.Second, 5*time.Millisecond)

	select {
	case <-h.Done():
		t.Fatal("handle finished while a retry is pending")
	case <-time.After(30 * time.Millisecond):
	}

	require.NoError(t, tr.Stop(context.Background()))
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("handle not finished after stop")
	}
	assert.Equal(t, 0, tr.PendingRetries())
}
