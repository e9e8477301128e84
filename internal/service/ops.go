package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/timelyrain333/bifang-sub000/infra/application/components/logging"
	"github.com/timelyrain333/bifang-sub000/infra/application/consts"
	"github.com/timelyrain333/bifang-sub000/infra/application/core"
	bizConsts "github.com/timelyrain333/bifang-sub000/internal/consts"
	"github.com/timelyrain333/bifang-sub000/internal/dao"
	"github.com/timelyrain333/bifang-sub000/internal/model"
	"github.com/timelyrain333/bifang-sub000/internal/schedule"
)

type StatusChange struct {
	TaskID  int64                `json:"task_id"`
	Name    string               `json:"name"`
	From    bizConsts.TaskStatus `json:"from"`
	To      bizConsts.TaskStatus `json:"to"`
	Applied bool                 `json:"applied"`
}

type SyncReport struct {
	DryRun  bool           `json:"dry_run"`
	Checked int            `json:"checked"`
	Changes []StatusChange `json:"changes"`
}

type ScheduleCheck struct {
	TaskID      int64                 `json:"task_id"`
	Name        string                `json:"name"`
	TriggerType bizConsts.TriggerType `json:"trigger_type"`
	Schedule    string                `json:"schedule"`
	Active      bool                  `json:"active"`
	Valid       bool                  `json:"valid"`
	Normalized  string                `json:"normalized,omitempty"`
	Fixed       bool                  `json:"fixed"`
	Registered  bool                  `json:"registered"`
	NextFire    *time.Time            `json:"next_fire,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// OpsService 运维命令: reload / 状态对账 / 卡死修复 / 调度表检查
type OpsService struct {
	*core.BaseComponent
	TaskDao   dao.TaskDao       `infra:"dep:task_dao"`
	ExecDao   dao.ExecutionDao  `infra:"dep:execution_dao"`
	Scheduler *SchedulerService `infra:"dep:scheduler_service"`
	Reaper    *Reaper           `infra:"dep:stuck_reaper"`
}

func NewOpsService() *OpsService {
	return &OpsService{BaseComponent: core.NewBaseComponent(bizConsts.COMP_SVC_OPS, consts.COMPONENT_LOGGING)}
}

func (o *OpsService) ReloadSchedules(ctx context.Context) (ReloadReport, error) {
	return o.Scheduler.Reload(ctx)
}

func (o *OpsService) FixStuck(ctx context.Context, threshold time.Duration, dryRun bool) (ReapReport, error) {
	return o.Reaper.Sweep(ctx, threshold, dryRun)
}

// SyncTaskStatus 以最近一次 Execution 为准修正任务缓存状态.
// paused 不动; 没有任何 Execution 且处于 running 的任务改回 pending.
func (o *OpsService) SyncTaskStatus(ctx context.Context, dryRun bool) (SyncReport, error) {
	rep := SyncReport{DryRun: dryRun, Changes: []StatusChange{}}
	tasks, err := o.TaskDao.ListAll(ctx)
	if err != nil {
		return rep, &InfraError{Op: "list tasks", Err: err}
	}
	for _, t := range tasks {
		if t.Status == bizConsts.TaskPaused {
			continue
		}
		rep.Checked++
		want, err := o.expectedStatus(ctx, t)
		if err != nil {
			return rep, err
		}
		if want == "" || want == t.Status {
			continue
		}
		ch := StatusChange{TaskID: t.ID, Name: t.Name, From: t.Status, To: want}
		if !dryRun {
			// CAS: 对账期间状态被引擎改过就不覆盖
			ok, err := o.TaskDao.CompareAndSetStatus(ctx, t.ID, []bizConsts.TaskStatus{t.Status}, want)
			if err != nil {
				return rep, &InfraError{Op: "update task status", Err: err}
			}
			ch.Applied = ok
		}
		rep.Changes = append(rep.Changes, ch)
	}
	logging.Info(ctx, "task status sync finished",
		zap.Bool("dry_run", dryRun), zap.Int("checked", rep.Checked), zap.Int("changes", len(rep.Changes)))
	return rep, nil
}

func (o *OpsService) expectedStatus(ctx context.Context, t *model.Task) (bizConsts.TaskStatus, error) {
	latest, err := o.ExecDao.Latest(ctx, t.ID)
	if errors.Is(err, dao.ErrNotFound) {
		if t.Status == bizConsts.TaskRunning {
			return bizConsts.TaskPending, nil
		}
		return "", nil
	}
	if err != nil {
		return "", &InfraError{Op: "latest execution", Err: err}
	}
	switch latest.Status {
	case bizConsts.ExecRunning:
		return bizConsts.TaskRunning, nil
	case bizConsts.ExecSuccess:
		return bizConsts.TaskSuccess, nil
	case bizConsts.ExecFailed:
		return bizConsts.TaskFailed, nil
	}
	return "", nil
}

// ListSchedules 校验所有 cron/interval 任务的 schedule; fix 时把可修复的 cron 写回规范形式并重新注册
func (o *OpsService) ListSchedules(ctx context.Context, fix bool) ([]ScheduleCheck, error) {
	tasks, err := o.TaskDao.ListAll(ctx)
	if err != nil {
		return nil, &InfraError{Op: "list tasks", Err: err}
	}
	out := make([]ScheduleCheck, 0, len(tasks))
	for _, t := range tasks {
		if t.TriggerType != bizConsts.TriggerCron && t.TriggerType != bizConsts.TriggerInterval {
			continue
		}
		c := ScheduleCheck{TaskID: t.ID, Name: t.Name, TriggerType: t.TriggerType, Schedule: t.Schedule, Active: t.IsActive}
		if tr, err := schedule.Parse(t.TriggerType, t.Schedule); err != nil {
			c.Error = err.Error()
		} else if tr.Next(time.Now()).IsZero() {
			c.Error = "schedule never fires"
		} else {
			c.Valid = true
		}
		if t.TriggerType == bizConsts.TriggerCron && c.Valid {
			if norm, err := schedule.NormalizeCron(t.Schedule); err == nil && norm != t.Schedule {
				c.Normalized = norm
				if fix {
					if err := o.TaskDao.UpdateSchedule(ctx, t.ID, norm); err != nil {
						return out, &InfraError{Op: "update schedule", Err: err}
					}
					t.Schedule = norm
					c.Fixed = true
					if t.IsActive {
						o.Scheduler.RegisterTask(ctx, t)
					}
				}
			}
		}
		if e, ok := o.Scheduler.Registry().Get(t.ID); ok {
			c.Registered = true
			next := e.NextFire
			c.NextFire = &next
		}
		out = append(out, c)
	}
	return out, nil
}

func (o *OpsService) GetExecution(ctx context.Context, id int64) (*model.Execution, error) {
	return o.ExecDao.Get(ctx, id)
}

func (o *OpsService) ListExecutions(ctx context.Context, taskID int64, limit int) ([]*model.Execution, error) {
	if _, err := o.TaskDao.Get(ctx, taskID); err != nil {
		return nil, err
	}
	return o.ExecDao.ListByTask(ctx, taskID, limit)
}
