package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/timelyrain333/bifang-sub000/infra/application/components/logging"
	"github.com/timelyrain333/bifang-sub000/infra/application/consts"
	"github.com/timelyrain333/bifang-sub000/infra/application/core"
	"github.com/timelyrain333/bifang-sub000/internal/config"
	bizConsts "github.com/timelyrain333/bifang-sub000/internal/consts"
	"github.com/timelyrain333/bifang-sub000/internal/dao"
	"github.com/timelyrain333/bifang-sub000/internal/metrics"
	"github.com/timelyrain333/bifang-sub000/internal/model"
	"github.com/timelyrain333/bifang-sub000/internal/notify"
	"github.com/timelyrain333/bifang-sub000/internal/schedule"
)

// RestartNotice 调度表只在本进程 reload 时刷新
const RestartNotice = "schedule changes are picked up only when this scheduler process reloads; " +
	"if a change still does not take effect, restart the scheduler process"

type ReloadReport struct {
	Registered         int               `json:"registered"`
	CronRegistered     int               `json:"cron_registered"`
	IntervalRegistered int               `json:"interval_registered"`
	Failed             int               `json:"failed"`
	Failures           []DispatchOutcome `json:"failures,omitempty"`
	Notice             string            `json:"notice"`
}

// SchedulerService 持有调度表, 按 PollInterval 检查到期任务并交给 transport
type SchedulerService struct {
	*core.BaseComponent
	TaskDao   dao.TaskDao `infra:"dep:task_dao"`
	Transport Transport   `infra:"dep:execution_transport"`
	Bus       *notify.Bus `infra:"dep:notify_bus"`

	cfg      config.SchedulerConfig
	registry *schedule.Registry
	now      func() time.Time

	mu       sync.Mutex
	inflight map[int64]string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSchedulerService(cfg config.SchedulerConfig) *SchedulerService {
	s := &SchedulerService{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_SVC_SCHEDULER, consts.COMPONENT_LOGGING),
		cfg:           cfg,
		now:           time.Now,
		inflight:      make(map[int64]string),
	}
	s.registry = schedule.NewRegistry(func() time.Time { return s.now() })
	return s
}

func (s *SchedulerService) Registry() *schedule.Registry { return s.registry }

func (s *SchedulerService) Start(ctx context.Context) error {
	if s.IsActive() {
		return nil
	}
	if err := s.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if s.cfg.ReloadOnStart {
		rep, err := s.Reload(ctx)
		if err != nil {
			return fmt.Errorf("initial schedule load: %w", err)
		}
		logging.Info(ctx, "schedule loaded", zap.Int("registered", rep.Registered), zap.Int("failed", rep.Failed))
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(loopCtx)
	return nil
}

func (s *SchedulerService) Stop(ctx context.Context) error {
	if !s.IsActive() {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return s.BaseComponent.Stop(ctx)
}

// Shutdown 停止检查到期任务; 已提交的执行由 transport 负责收尾
func (s *SchedulerService) Shutdown(ctx context.Context) error { return s.Stop(ctx) }

func (s *SchedulerService) loop(ctx context.Context) {
	defer s.wg.Done()
	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx, s.now())
		}
	}
}

// Tick 派发 now 时刻所有到期条目
func (s *SchedulerService) Tick(ctx context.Context, now time.Time) []DispatchOutcome {
	due := s.registry.Due(now)
	out := make([]DispatchOutcome, 0, len(due))
	for _, e := range due {
		o := s.dispatch(ctx, ExecRequest{TaskID: e.TaskID, Attempt: 1})
		metrics.Dispatch(string(o.Kind))
		if o.Kind != OutcomeDispatched {
			logging.Info(ctx, "scheduled run skipped", zap.Int64("task_id", e.TaskID), zap.String("reason", o.Reason))
		}
		if !e.NextFire.IsZero() {
			next := e.NextFire
			if err := s.TaskDao.UpdateNextRunAt(ctx, e.TaskID, &next); err != nil {
				logging.Warn(ctx, "update next_run_at failed", zap.Int64("task_id", e.TaskID), zap.Error(err))
			}
		}
		out = append(out, o)
	}
	return out
}

// dispatch 定时触发受 in-flight 约束; 手动触发不检查也不占位
func (s *SchedulerService) dispatch(ctx context.Context, req ExecRequest) DispatchOutcome {
	if req.Manual {
		h, err := s.Transport.Submit(ctx, req)
		if err != nil {
			return submitSkipped(ctx, req.TaskID, err)
		}
		return Dispatched(req.TaskID, h.ID())
	}
	s.mu.Lock()
	if _, busy := s.inflight[req.TaskID]; busy {
		s.mu.Unlock()
		return Skipped(req.TaskID, "previous run still in flight")
	}
	// 先占位, Submit 期间同一任务的其它触发直接跳过
	s.inflight[req.TaskID] = ""
	s.mu.Unlock()

	h, err := s.Transport.Submit(ctx, req)
	if err != nil {
		s.release(req.TaskID)
		return submitSkipped(ctx, req.TaskID, err)
	}
	done := h.Done()
	if done == nil {
		s.release(req.TaskID)
		return Dispatched(req.TaskID, h.ID())
	}
	s.mu.Lock()
	s.inflight[req.TaskID] = h.ID()
	metrics.Inflight(len(s.inflight))
	s.mu.Unlock()
	go func() {
		<-done
		s.release(req.TaskID)
	}()
	return Dispatched(req.TaskID, h.ID())
}

func submitSkipped(ctx context.Context, taskID int64, err error) DispatchOutcome {
	switch {
	case errors.Is(err, ErrPoolFull):
		return Skipped(taskID, "worker queue full")
	case errors.Is(err, ErrAlreadyQueued):
		return Skipped(taskID, "already queued")
	default:
		logging.Error(ctx, "submit execution failed", zap.Int64("task_id", taskID), zap.Error(err))
		return Skipped(taskID, "submit failed: "+err.Error())
	}
}

func (s *SchedulerService) release(taskID int64) {
	s.mu.Lock()
	delete(s.inflight, taskID)
	metrics.Inflight(len(s.inflight))
	s.mu.Unlock()
}

// InFlight 本进程内已派发且尚未结束的任务
func (s *SchedulerService) InFlight(taskID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[taskID]
	return ok
}

// TriggerManual 手动运行; 任务不存在返回 dao.ErrNotFound, 未启用返回 ErrTaskInactive
func (s *SchedulerService) TriggerManual(ctx context.Context, taskID, userID int64) (DispatchOutcome, error) {
	task, err := s.TaskDao.Get(ctx, taskID)
	if err != nil {
		return DispatchOutcome{}, err
	}
	if !task.IsActive {
		return Skipped(taskID, "task inactive"), ErrTaskInactive
	}
	o := s.dispatch(ctx, ExecRequest{TaskID: taskID, UserID: userID, Manual: true, Attempt: 1})
	metrics.Dispatch(string(o.Kind))
	if o.Kind == OutcomeDispatched {
		snapshot := *task
		if snapshot.Status != bizConsts.TaskPaused {
			snapshot.Status = bizConsts.TaskPending
		}
		s.Bus.PublishTaskStatus(ctx, &snapshot, 0, userID)
	}
	return o, nil
}

// Reload 清空调度表后分两轮注册: 先 cron 再 interval
func (s *SchedulerService) Reload(ctx context.Context) (ReloadReport, error) {
	rep := ReloadReport{Notice: RestartNotice}
	tasks, err := s.TaskDao.ListSchedulable(ctx)
	if err != nil {
		return rep, &InfraError{Op: "list schedulable tasks", Err: err}
	}
	s.registry.Clear()
	for _, pass := range []bizConsts.TriggerType{bizConsts.TriggerCron, bizConsts.TriggerInterval} {
		for _, t := range tasks {
			if t.TriggerType != pass {
				continue
			}
			o := s.RegisterTask(ctx, t)
			switch o.Kind {
			case OutcomeDispatched:
				rep.Registered++
				if pass == bizConsts.TriggerCron {
					rep.CronRegistered++
				} else {
					rep.IntervalRegistered++
				}
			case OutcomeValidationFailed:
				rep.Failed++
				rep.Failures = append(rep.Failures, o)
			}
		}
	}
	logging.Info(ctx, "schedule reloaded",
		zap.Int("cron", rep.CronRegistered), zap.Int("interval", rep.IntervalRegistered), zap.Int("failed", rep.Failed))
	return rep, nil
}

// RegisterTask 注册/更新单个任务; 成功时 Kind 为 dispatched, 不可调度为 skipped
func (s *SchedulerService) RegisterTask(ctx context.Context, t *model.Task) DispatchOutcome {
	ok, err := s.registry.Register(t)
	if err != nil {
		logging.Warn(ctx, "schedule rejected", zap.Int64("task_id", t.ID), zap.String("schedule", t.Schedule), zap.Error(err))
		return ValidationFailed(t.ID, err.Error())
	}
	if !ok {
		return Skipped(t.ID, "task is not schedulable")
	}
	if e, found := s.registry.Get(t.ID); found {
		next := e.NextFire
		if err := s.TaskDao.UpdateNextRunAt(ctx, t.ID, &next); err != nil {
			logging.Warn(ctx, "update next_run_at failed", zap.Int64("task_id", t.ID), zap.Error(err))
		}
	}
	return Dispatched(t.ID, "")
}
