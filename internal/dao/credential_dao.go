package dao

import (
	"context"

	"gorm.io/gorm"

	mg "github.com/timelyrain333/bifang-sub000/infra/application/components/mysqlgorm"
	pg "github.com/timelyrain333/bifang-sub000/infra/application/components/postgresgorm"
	"github.com/timelyrain333/bifang-sub000/infra/application/consts"
	"github.com/timelyrain333/bifang-sub000/infra/application/core"
	bizConsts "github.com/timelyrain333/bifang-sub000/internal/consts"
	"github.com/timelyrain333/bifang-sub000/internal/model"
)

// CredentialDao 只读; 凭据的增删改由 CRUD 服务负责
type CredentialDao interface {
	core.Component
	GetCloudAccount(ctx context.Context, id int64) (*model.CloudAccount, error)
	// DefaultProviderConfig 用户在 provider 下启用的配置, is_default 优先
	DefaultProviderConfig(ctx context.Context, userID int64, provider string) (*model.UserProviderConfig, error)
	EnabledAIConfig(ctx context.Context, userID int64) (*model.AIConfig, error)
}

type credentialDaoImpl struct {
	*core.BaseComponent
	MySQL    *mg.GormComponent         `infra:"dep:mysql_gorm?"`
	Postgres *pg.PostgresGormComponent `infra:"dep:postgres_gorm?"`
	db       *gorm.DB
	dsName   string
}

func NewCredentialDao(dsName string) CredentialDao {
	return &credentialDaoImpl{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_DAO_CREDENTIAL, consts.COMPONENT_LOGGING),
		dsName:        dsName,
	}
}

func NewCredentialDaoFromDB(db *gorm.DB) CredentialDao {
	return &credentialDaoImpl{BaseComponent: core.NewBaseComponent(bizConsts.COMP_DAO_CREDENTIAL), db: db}
}

func (d *credentialDaoImpl) Start(ctx context.Context) error {
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

func (d *credentialDaoImpl) GetCloudAccount(ctx context.Context, id int64) (*model.CloudAccount, error) {
	var a model.CloudAccount
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, notFound(err, "cloud account", id)
	}
	return &a, nil
}

func (d *credentialDaoImpl) DefaultProviderConfig(ctx context.Context, userID int64, provider string) (*model.UserProviderConfig, error) {
	var c model.UserProviderConfig
	err := d.db.WithContext(ctx).
		Where("user_id = ? AND provider = ? AND is_active = ?", userID, provider, true).
		Order("is_default DESC, id DESC").First(&c).Error
	if err != nil {
		return nil, notFound(err, "provider config of user", userID)
	}
	return &c, nil
}

func (d *credentialDaoImpl) EnabledAIConfig(ctx context.Context, userID int64) (*model.AIConfig, error) {
	var c model.AIConfig
	err := d.db.WithContext(ctx).Where("user_id = ? AND enabled = ?", userID, true).Order("id DESC").First(&c).Error
	if err != nil {
		return nil, notFound(err, "ai config of user", userID)
	}
	return &c, nil
}
