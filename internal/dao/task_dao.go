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

type TaskDao interface {
	core.Component
	Create(ctx context.Context, t *model.Task) error
	Get(ctx context.Context, id int64) (*model.Task, error)
	// ListSchedulable is_active 且 trigger_type 为 cron/interval
	ListSchedulable(ctx context.Context) ([]*model.Task, error)
	ListAll(ctx context.Context) ([]*model.Task, error)
	UpdateStatus(ctx context.Context, id int64, status bizConsts.TaskStatus) error
	// CompareAndSetStatus 仅当当前状态在 from 中时更新, 返回是否命中
	CompareAndSetStatus(ctx context.Context, id int64, from []bizConsts.TaskStatus, to bizConsts.TaskStatus) (bool, error)
	// MarkStarted status=running, last_run_at=at; paused 的任务不覆盖状态
	MarkStarted(ctx context.Context, id int64, at time.Time) error
	UpdateSchedule(ctx context.Context, id int64, schedule string) error
	UpdateNextRunAt(ctx context.Context, id int64, next *time.Time) error
}

type taskDaoImpl struct {
	*core.BaseComponent
	MySQL    *mg.GormComponent         `infra:"dep:mysql_gorm?"`
	Postgres *pg.PostgresGormComponent `infra:"dep:postgres_gorm?"`
	db       *gorm.DB
	dsName   string
}

func NewTaskDao(dsName string) TaskDao {
	return &taskDaoImpl{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_DAO_TASK, consts.COMPONENT_LOGGING),
		dsName:        dsName,
	}
}

// NewTaskDaoFromDB 直接使用给定连接, Start 不再解析数据源
func NewTaskDaoFromDB(db *gorm.DB) TaskDao {
	return &taskDaoImpl{BaseComponent: core.NewBaseComponent(bizConsts.COMP_DAO_TASK), db: db}
}

func (d *taskDaoImpl) Start(ctx context.Context) error {
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

func (d *taskDaoImpl) Create(ctx context.Context, t *model.Task) error {
	if t.Status == "" {
		t.Status = bizConsts.TaskPending
	}
	if t.Config == nil {
		t.Config = model.JSONMap{}
	}
	return d.db.WithContext(ctx).Create(t).Error
}

func (d *taskDaoImpl) Get(ctx context.Context, id int64) (*model.Task, error) {
	var t model.Task
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, notFound(err, "task", id)
	}
	return &t, nil
}

func (d *taskDaoImpl) ListSchedulable(ctx context.Context) ([]*model.Task, error) {
	var list []*model.Task
	err := d.db.WithContext(ctx).
		Where("is_active = ? AND trigger_type IN ?", true, []bizConsts.TriggerType{bizConsts.TriggerCron, bizConsts.TriggerInterval}).
		Order("id").Find(&list).Error
	return list, err
}

func (d *taskDaoImpl) ListAll(ctx context.Context) ([]*model.Task, error) {
	var list []*model.Task
	err := d.db.WithContext(ctx).Order("id").Find(&list).Error
	return list, err
}

func (d *taskDaoImpl) UpdateStatus(ctx context.Context, id int64, status bizConsts.TaskStatus) error {
	return d.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", id).Update("status", status).Error
}

func (d *taskDaoImpl) CompareAndSetStatus(ctx context.Context, id int64, from []bizConsts.TaskStatus, to bizConsts.TaskStatus) (bool, error) {
	res := d.db.WithContext(ctx).Model(&model.Task{}).Where("id = ? AND status IN ?", id, from).Update("status", to)
	return res.Error == nil && res.RowsAffected == 1, res.Error
}

func (d *taskDaoImpl) MarkStarted(ctx context.Context, id int64, at time.Time) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Task{}).Where("id = ?", id).Update("last_run_at", at).Error; err != nil {
			return err
		}
		return tx.Model(&model.Task{}).Where("id = ? AND status <> ?", id, bizConsts.TaskPaused).
			Update("status", bizConsts.TaskRunning).Error
	})
}

func (d *taskDaoImpl) UpdateSchedule(ctx context.Context, id int64, schedule string) error {
	return d.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", id).Update("schedule", schedule).Error
}

func (d *taskDaoImpl) UpdateNextRunAt(ctx context.Context, id int64, next *time.Time) error {
	return d.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", id).Update("next_run_at", next).Error
}
