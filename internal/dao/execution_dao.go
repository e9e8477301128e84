package dao

import (
	"context"
	"time"

	"gorm.io/gorm"

	mg "github.com/timelyrain333/bifang-sub000/infra/application/components/mysqlgorm"
	pg "github.com/timelyrain333/bifang-sub000/infra/application/components/postgresgorm"
	"github.com/timelyrain333/bifang-sub000/infra/application/consts"
	"github.com/timelyrain333/bifang-sub000/infra/application/core"
	bizConsts "github.com/timelyrain333/bifang-sub000/internal/consts"
	"github.com/timelyrain333/bifang-sub000/internal/model"
)

// StuckRepair FailStuck 的结果
type StuckRepair struct {
	ExecutionFailed bool
	TaskRepaired    bool
}

type ExecutionDao interface {
	core.Component
	Create(ctx context.Context, e *model.Execution) error
	Get(ctx context.Context, id int64) (*model.Execution, error)
	ListByTask(ctx context.Context, taskID int64, limit int) ([]*model.Execution, error)
	// Latest 最近一次 Execution, 没有时返回 ErrNotFound
	Latest(ctx context.Context, taskID int64) (*model.Execution, error)
	ListStuck(ctx context.Context, startedBefore time.Time, limit int) ([]*model.Execution, error)
	// Finish 同一事务写 Execution 终态和任务缓存状态; Execution 已不是 running 时返回 false 且不动任务
	Finish(ctx context.Context, e *model.Execution, taskStatus bizConsts.TaskStatus) (bool, error)
	// FailStuck 条件更新, 只处理仍为 running 的记录, 可与自身及引擎并发执行
	FailStuck(ctx context.Context, e *model.Execution, msg string, now time.Time) (StuckRepair, error)
}

type executionDaoImpl struct {
	*core.BaseComponent
	MySQL    *mg.GormComponent         `infra:"dep:mysql_gorm?"`
	Postgres *pg.PostgresGormComponent `infra:"dep:postgres_gorm?"`
	db       *gorm.DB
	dsName   string
}

func NewExecutionDao(dsName string) ExecutionDao {
	return &executionDaoImpl{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_DAO_EXECUTION, consts.COMPONENT_LOGGING),
		dsName:        dsName,
	}
}

func NewExecutionDaoFromDB(db *gorm.DB) ExecutionDao {
	return &executionDaoImpl{BaseComponent: core.NewBaseComponent(bizConsts.COMP_DAO_EXECUTION), db: db}
}

func (d *executionDaoImpl) Start(ctx context.Context) error {
	if err := d.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if d.db != nil {
		return nil
	}
	db, err := openDB(d.MySQL, d.Postgres, d.dsName)
	if err != nil {
		return err
	}
	d.db = db
	return nil
}

func (d *executionDaoImpl) Create(ctx context.Context, e *model.Execution) error {
	if e.Status == "" {
		e.Status = bizConsts.ExecRunning
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	if e.Result == nil {
		e.Result = model.JSONMap{}
	}
	return d.db.WithContext(ctx).Create(e).Error
}

func (d *executionDaoImpl) Get(ctx context.Context, id int64) (*model.Execution, error) {
	var e model.Execution
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, notFound(err, "execution", id)
	}
	return &e, nil
}

func (d *executionDaoImpl) ListByTask(ctx context.Context, taskID int64, limit int) ([]*model.Execution, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var list []*model.Execution
	err := d.db.WithContext(ctx).Where("task_id = ?", taskID).Order("started_at DESC, id DESC").Limit(limit).Find(&list).Error
	return list, err
}

func (d *executionDaoImpl) Latest(ctx context.Context, taskID int64) (*model.Execution, error) {
	var e model.Execution
	if err := d.db.WithContext(ctx).Where("task_id = ?", taskID).Order("started_at DESC, id DESC").First(&e).Error; err != nil {
		return nil, notFound(err, "latest execution of task", taskID)
	}
	return &e, nil
}

func (d *executionDaoImpl) ListStuck(ctx context.Context, startedBefore time.Time, limit int) ([]*model.Execution, error) {
	var list []*model.Execution
	q := d.db.WithContext(ctx).Where("status = ? AND started_at < ?", bizConsts.ExecRunning, startedBefore).Order("started_at, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&list).Error
	return list, err
}

func (d *executionDaoImpl) Finish(ctx context.Context, e *model.Execution, taskStatus bizConsts.TaskStatus) (bool, error) {
	finished := false
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Execution{}).
			Where("id = ? AND status = ?", e.ID, bizConsts.ExecRunning).
			Updates(map[string]any{
				"status":        e.Status,
				"finished_at":   e.FinishedAt,
				"result":        e.Result,
				"error_message": e.ErrorMessage,
				"logs":          e.Logs,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		finished = true
		return tx.Model(&model.Task{}).Where("id = ? AND status <> ?", e.TaskID, bizConsts.TaskPaused).
			Update("status", taskStatus).Error
	})
	if err != nil {
		return false, err
	}
	return finished, nil
}

func (d *executionDaoImpl) FailStuck(ctx context.Context, e *model.Execution, msg string, now time.Time) (StuckRepair, error) {
	var out StuckRepair
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Execution{}).
			Where("id = ? AND status = ?", e.ID, bizConsts.ExecRunning).
			Updates(map[string]any{"status": bizConsts.ExecFailed, "finished_at": now, "error_message": msg})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		out.ExecutionFailed = true
		// 同一任务还有其它 running 的 Execution 时任务状态是对的, 不修
		stillRunning := tx.Model(&model.Execution{}).Select("1").
			Where("task_id = ? AND status = ?", e.TaskID, bizConsts.ExecRunning)
		res = tx.Model(&model.Task{}).
			Where("id = ? AND status = ?", e.TaskID, bizConsts.TaskRunning).
			Where("NOT EXISTS (?)", stillRunning).
			Update("status", bizConsts.TaskFailed)
		if res.Error != nil {
			return res.Error
		}
		out.TaskRepaired = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return StuckRepair{}, err
	}
	return out, nil
}
