package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/timelyrain333/bifang-sub000/internal/config"
	"github.com/timelyrain333/bifang-sub000/internal/dao"
	"github.com/timelyrain333/bifang-sub000/internal/dao/daotest"
	"github.com/timelyrain333/bifang-sub000/internal/notify"
	"github.com/timelyrain333/bifang-sub000/internal/plugin"
)

const (
	pluginOK     = "svc_test_ok"
	pluginFail   = "svc_test_fail"
	pluginPanic  = "svc_test_panic"
	pluginFalse  = "svc_test_false"
	pluginBad    = "svc_test_bad"
	pluginHang   = "svc_test_hang"
	pluginAWS    = "svc_test_aws"
	pluginCount  = "svc_test_count"
	pluginFlaky  = "svc_test_flaky"
	longErrorMsg = "the upstream api rejected the request because the signature did not match"
)

var (
	hangRelease = make(chan struct{})
	countRuns   atomic.Int32

	// 第一次调用失败, 之后的调用阻塞到 flakyRelease 关闭
	flakyCalls   atomic.Int32
	flakyRelease chan struct{}
)

type funcPlugin struct {
	desc plugin.Descriptor
	run  func(ctx context.Context, cfg map[string]any) (any, error)
}

func (f funcPlugin) Descriptor() plugin.Descriptor { return f.desc }
func (f funcPlugin) Run(ctx context.Context, cfg map[string]any) (any, error) {
	return f.run(ctx, cfg)
}

func register(name, provider string, run func(ctx context.Context, cfg map[string]any) (any, error)) {
	plugin.MustRegister(name, func(plugin.Env) (plugin.Plugin, error) {
		return funcPlugin{desc: plugin.Descriptor{Name: name, Provider: provider}, run: run}, nil
	})
}

func init() {
	register(pluginOK, "", func(context.Context, map[string]any) (any, error) {
		return plugin.Result{Success: true, Message: "ok", Logs: "plugin line"}, nil
	})
	register(pluginFail, "", func(context.Context, map[string]any) (any, error) {
		return nil, errors.New(longErrorMsg)
	})
	register(pluginPanic, "", func(context.Context, map[string]any) (any, error) {
		panic("boom")
	})
	register(pluginFalse, "", func(context.Context, map[string]any) (any, error) {
		return map[string]any{"success": false, "message": "nothing to scan"}, nil
	})
	register(pluginBad, "", func(context.Context, map[string]any) (any, error) {
		return "done", nil
	})
	register(pluginHang, "", func(context.Context, map[string]any) (any, error) {
		<-hangRelease
		return plugin.Result{Success: true}, nil
	})
	register(pluginAWS, plugin.ProviderAWS, func(_ context.Context, cfg map[string]any) (any, error) {
		return plugin.Result{Success: true, Data: cfg}, nil
	})
	register(pluginCount, "", func(context.Context, map[string]any) (any, error) {
		countRuns.Add(1)
		return nil, errors.New("still failing")
	})
	register(pluginFlaky, "", func(context.Context, map[string]any) (any, error) {
		if flakyCalls.Add(1) == 1 {
			return nil, errors.New("first call fails")
		}
		<-flakyRelease
		return plugin.Result{Success: true}, nil
	})
}

type testEnv struct {
	db     *gorm.DB
	tasks  dao.TaskDao
	execs  dao.ExecutionDao
	creds  dao.CredentialDao
	bus    *notify.Bus
	engine *Engine
}

func testExecutorConfig() config.ExecutorConfig {
	cfg := config.Default().Executor
	cfg.SoftTimeout = time.Second
	cfg.HardTimeout = 2 * time.Second
	cfg.RetryDelay = 10 * time.Millisecond
	cfg.MaxRetries = 2
	return cfg
}

func newTestEnv(t *testing.T, cfg config.ExecutorConfig) *testEnv {
	t.Helper()
	ctx := context.Background()
	db := daotest.NewDB(t)
	env := &testEnv{
		db:    db,
		tasks: dao.NewTaskDaoFromDB(db),
		execs: dao.NewExecutionDaoFromDB(db),
		creds: dao.NewCredentialDaoFromDB(db),
		bus:   notify.NewBus(config.NotifyConfig{QueueSize: 50}),
	}
	require.NoError(t, env.tasks.Start(ctx))
	require.NoError(t, env.execs.Start(ctx))
	require.NoError(t, env.creds.Start(ctx))
	require.NoError(t, env.bus.Start(ctx))
	t.Cleanup(func() { _ = env.bus.Stop(context.Background()) })

	env.engine = NewEngine(cfg)
	env.engine.TaskDao = env.tasks
	env.engine.ExecDao = env.execs
	env.engine.CredDao = env.creds
	env.engine.Bus = env.bus
	require.NoError(t, env.engine.Start(ctx))
	return env
}

func drainStatuses(s *notify.Subscription) []string {
	var out []string
	for _, m := range s.Drain() {
		if m.Type == notify.TypeTaskStatus {
			out = append(out, m.Status)
		}
	}
	return out
}
