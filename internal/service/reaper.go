package service

import (
	"context"
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
	"github.com/timelyrain333/bifang-sub000/internal/notify"
)

// 单次 sweep 最多翻页次数
const maxSweepPages = 100

type StuckExecution struct {
	ExecutionID  int64         `json:"execution_id"`
	TaskID       int64         `json:"task_id"`
	StartedAt    time.Time     `json:"started_at"`
	RunningFor   time.Duration `json:"running_for"`
	Failed       bool          `json:"failed"`
	TaskRepaired bool          `json:"task_repaired"`
}

type ReapReport struct {
	Threshold        time.Duration    `json:"threshold"`
	Cutoff           time.Time        `json:"cutoff"`
	DryRun           bool             `json:"dry_run"`
	Candidates       []StuckExecution `json:"candidates"`
	ExecutionsFailed int              `json:"executions_failed"`
	TasksRepaired    int              `json:"tasks_repaired"`
}

// Reaper 把长时间停留在 running 的 Execution 判为失败, 并修复任务缓存状态
type Reaper struct {
	*core.BaseComponent
	ExecDao dao.ExecutionDao `infra:"dep:execution_dao"`
	TaskDao dao.TaskDao      `infra:"dep:task_dao"`
	Bus     *notify.Bus      `infra:"dep:notify_bus"`

	cfg    config.ReaperConfig
	now    func() time.Time
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewReaper(cfg config.ReaperConfig) *Reaper {
	return &Reaper{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_SVC_REAPER, consts.COMPONENT_LOGGING),
		cfg:           cfg,
		now:           time.Now,
	}
}

func (r *Reaper) Start(ctx context.Context) error {
	if r.IsActive() {
		return nil
	}
	if err := r.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if !r.cfg.Enabled {
		logging.Info(ctx, "periodic stuck execution sweep disabled")
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go r.loop(loopCtx)
	return nil
}

func (r *Reaper) Stop(ctx context.Context) error {
	if !r.IsActive() {
		return nil
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	return r.BaseComponent.Stop(ctx)
}

func (r *Reaper) loop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rep, err := r.Sweep(ctx, r.cfg.Threshold, false)
			if err != nil {
				logging.Error(ctx, "stuck execution sweep failed", zap.Error(err))
				continue
			}
			if rep.ExecutionsFailed > 0 {
				logging.Warn(ctx, "stuck executions failed",
					zap.Int("executions", rep.ExecutionsFailed), zap.Int("tasks_repaired", rep.TasksRepaired))
			}
		}
	}
}

// Sweep 处理 started_at 早于 now-threshold 的 running 记录; dryRun 只列出不修改.
// 可与引擎及其它 Sweep 并发, 重复执行是空操作.
func (r *Reaper) Sweep(ctx context.Context, threshold time.Duration, dryRun bool) (ReapReport, error) {
	if threshold <= 0 {
		threshold = r.cfg.Threshold
	}
	now := r.now()
	rep := ReapReport{Threshold: threshold, Cutoff: now.Add(-threshold), DryRun: dryRun, Candidates: []StuckExecution{}}
	limit := r.cfg.BatchLimit

	for page := 0; page < maxSweepPages; page++ {
		list, err := r.ExecDao.ListStuck(ctx, rep.Cutoff, limit)
		if err != nil {
			return rep, &InfraError{Op: "list stuck executions", Err: err}
		}
		for _, e := range list {
			item := StuckExecution{ExecutionID: e.ID, TaskID: e.TaskID, StartedAt: e.StartedAt, RunningFor: now.Sub(e.StartedAt)}
			if !dryRun {
				repair, err := r.ExecDao.FailStuck(ctx, e, bizConsts.STUCK_EXECUTION_MESSAGE, now)
				if err != nil {
					return rep, &InfraError{Op: "fail stuck execution", Err: err}
				}
				item.Failed = repair.ExecutionFailed
				item.TaskRepaired = repair.TaskRepaired
				if repair.ExecutionFailed {
					rep.ExecutionsFailed++
				}
				if repair.TaskRepaired {
					rep.TasksRepaired++
					r.publish(ctx, e.TaskID, e.ID, e.Meta().TriggeredBy)
				}
			}
			rep.Candidates = append(rep.Candidates, item)
		}
		// dry-run 不改数据, 再查还是同一批
		if dryRun || limit <= 0 || len(list) < limit {
			break
		}
	}
	metrics.ReaperRepaired(rep.ExecutionsFailed)
	return rep, nil
}

func (r *Reaper) publish(ctx context.Context, taskID, executionID, triggeredBy int64) {
	task, err := r.TaskDao.Get(ctx, taskID)
	if err != nil {
		logging.Warn(ctx, "reload repaired task failed", zap.Int64("task_id", taskID), zap.Error(err))
		return
	}
	r.Bus.PublishTaskStatus(ctx, task, executionID, triggeredBy)
}
