package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/timelyrain333/bifang-sub000/internal/config"
	"github.com/timelyrain333/bifang-sub000/internal/consts"
	"github.com/timelyrain333/bifang-sub000/internal/dao"
	"github.com/timelyrain333/bifang-sub000/internal/dao/daotest"
	"github.com/timelyrain333/bifang-sub000/internal/model"
	"github.com/timelyrain333/bifang-sub000/internal/notify"
	"github.com/timelyrain333/bifang-sub000/internal/plugin/builtin"
	"github.com/timelyrain333/bifang-sub000/internal/service"
)

type stack struct {
	db     *gorm.DB
	bus    *notify.Bus
	router chi.Router
}

func newStack(t *testing.T) *stack {
	t.Helper()
	ctx := context.Background()
	db := daotest.NewDB(t)
	cfg := config.Default()
	cfg.Executor.RetryDelay = time.Hour
	cfg.Notify.HeartbeatInterval = time.Hour

	tasks := dao.NewTaskDaoFromDB(db)
	execs := dao.NewExecutionDaoFromDB(db)
	creds := dao.NewCredentialDaoFromDB(db)
	bus := notify.NewBus(cfg.Notify)

	engine := service.NewEngine(cfg.Executor)
	engine.TaskDao, engine.ExecDao, engine.CredDao, engine.Bus = tasks, execs, creds, bus

	pool := service.NewWorkerPool(2, 8)
	transport := service.NewLocalTransport(cfg.Executor)
	transport.Pool, transport.Engine = pool, engine

	sched := service.NewSchedulerService(config.SchedulerConfig{PollInterval: time.Hour})
	sched.TaskDao, sched.Transport, sched.Bus = tasks, transport, bus

	reaper := service.NewReaper(cfg.Reaper)
	reaper.ExecDao, reaper.TaskDao, reaper.Bus = execs, tasks, bus

	ops := service.NewOpsService()
	ops.TaskDao, ops.ExecDao, ops.Scheduler, ops.Reaper = tasks, execs, sched, reaper

	for _, c := range []interface{ Start(context.Context) error }{tasks, execs, creds, bus, engine, pool, transport, sched} {
		require.NoError(t, c.Start(ctx))
	}
	t.Cleanup(func() {
		stop := context.Background()
		_ = sched.Stop(stop)
		_ = transport.Stop(stop)
		_ = pool.Stop(stop)
		_ = bus.Stop(stop)
	})

	taskCtrl := NewTaskController()
	taskCtrl.Scheduler, taskCtrl.Ops, taskCtrl.Transport = sched, ops, transport
	opsCtrl := NewOpsController()
	opsCtrl.Ops = ops
	notifyCtrl := NewNotifyController()
	notifyCtrl.Bus = bus

	r := chi.NewRouter()
	taskCtrl.Routes(r)
	opsCtrl.Routes(r)
	notifyCtrl.Routes(r)
	return &stack{db: db, bus: bus, router: r}
}

func (s *stack) do(t *testing.T, method, path string, body string, out any) int {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(UserHeader, "5")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestRunTask(t *testing.T) {
	s := newStack(t)
	task := daotest.CreateTask(t, s.db, func(x *model.Task) { x.PluginName = builtin.NoopName })
	inactive := daotest.CreateTask(t, s.db, func(x *model.Task) { x.IsActive = false })

	var out service.DispatchOutcome
	code := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/tasks/%d/run", task.ID), "", &out)
	require.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, service.OutcomeDispatched, out.Kind)
	require.NotEmpty(t, out.HandleID)

	var st service.HandleStatus
	require.Eventually(t, func() bool {
		return s.do(t, http.MethodGet, "/api/v1/handles/"+out.HandleID, "", &st) == http.StatusOK && st.State == "done"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, string(consts.ExecSuccess), st.Status)

	var exec model.Execution
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/executions/%d", st.ExecutionID), "", &exec))
	assert.Equal(t, int64(5), exec.Meta().TriggeredBy)

	var list struct {
		Items []model.Execution `json:"items"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/tasks/%d/executions", task.ID), "", &list))
	assert.Len(t, list.Items, 1)

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/tasks/%d/run", inactive.ID), "", nil))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/v1/tasks/9999/run", "", nil))
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/tasks/abc/run", "", nil))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/handles/nope", "", nil))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/executions/9999", "", nil))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/tasks/9999/executions", "", nil))
}

func TestOpsEndpoints(t *testing.T) {
	s := newStack(t)
	orphan := daotest.CreateTask(t, s.db, func(x *model.Task) { x.Status = consts.TaskRunning })
	daotest.CreateTask(t, s.db, func(x *model.Task) { x.TriggerType = consts.TriggerCron; x.Schedule = "*/10****" })
	stuck := daotest.CreateTask(t, s.db, func(x *model.Task) { x.Status = consts.TaskRunning })
	daotest.CreateExecution(t, s.db, stuck.ID, consts.ExecRunning, time.Now().Add(-2*time.Hour))

	var sync service.SyncReport
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/ops/sync-status?dry_run=true", "", &sync))
	assert.True(t, sync.DryRun)
	require.Len(t, sync.Changes, 1)
	assert.Equal(t, orphan.ID, sync.Changes[0].TaskID)

	var reap service.ReapReport
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/ops/fix-stuck", `{"threshold_minutes":60}`, &reap))
	assert.Equal(t, 1, reap.ExecutionsFailed)
	assert.Equal(t, 1, reap.TasksRepaired)

	var reload service.ReloadReport
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/ops/reload", "", &reload))
	assert.Equal(t, 1, reload.CronRegistered)
	assert.Equal(t, service.RestartNotice, reload.Notice)

	var schedules struct {
		Items []service.ScheduleCheck `json:"items"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/ops/schedules/fix", "", &schedules))
	require.Len(t, schedules.Items, 1)
	assert.True(t, schedules.Items[0].Fixed)
	assert.Equal(t, "*/10 * * * *", schedules.Items[0].Normalized)

	var plugins struct {
		Items []struct {
			Name string `json:"Name"`
		} `json:"items"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/ops/plugins", "", &plugins))
	var names []string
	for _, p := range plugins.Items {
		names = append(names, p.Name)
	}
	assert.Contains(t, names, builtin.NoopName)
	assert.Contains(t, names, builtin.WebhookName)
}

func TestNotificationStream(t *testing.T) {
	s := newStack(t)
	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/notifications/stream", nil)
	require.NoError(t, err)
	req.Header.Set(UserHeader, "8")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan notify.Message, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var m notify.Message
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &m) == nil {
				events <- m
			}
		}
		close(events)
	}()

	next := func() notify.Message {
		select {
		case m := <-events:
			return m
		case <-time.After(2 * time.Second):
			t.Fatal("no event received")
			return notify.Message{}
		}
	}
	assert.Equal(t, notify.TypeConnected, next().Type)

	task := &model.Task{ID: 42, Name: "scan", Status: consts.TaskRunning, CreatedBy: 8}
	s.bus.PublishTaskStatus(context.Background(), task, 7, 0)
	m := next()
	assert.Equal(t, notify.TypeTaskStatus, m.Type)
	assert.Equal(t, int64(42), m.TaskID)
	assert.Equal(t, "running", m.Status)

	// 别的用户的消息收不到
	s.bus.PublishTaskStatus(context.Background(), &model.Task{ID: 43, CreatedBy: 9}, 0, 0)
	s.bus.PublishTaskStatus(context.Background(), &model.Task{ID: 44, CreatedBy: 8, Status: consts.TaskSuccess}, 0, 0)
	assert.Equal(t, int64(44), next().TaskID)
}

func TestNotificationStreamRequiresUser(t *testing.T) {
	s := newStack(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/stream", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
