package mysqlgorm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	mysqlDriver "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/timelyrain333/bifang-sub000/infra/application/components/gormx"
	"github.com/timelyrain333/bifang-sub000/infra/application/components/logging"
	"github.com/timelyrain333/bifang-sub000/infra/application/consts"
	"github.com/timelyrain333/bifang-sub000/infra/application/core"
)

// GormComponent 每个数据源一个 *gorm.DB
type GormComponent struct {
	*core.BaseComponent
	cfg   *Config
	dbs   map[string]*gorm.DB
	mutex sync.RWMutex
	log   logger.Interface
}

var _ gormx.Provider = (*GormComponent)(nil)

func NewGormComponent(cfg *Config) *GormComponent {
	return &GormComponent{
		BaseComponent: core.NewBaseComponent(consts.COMPONENT_MYSQL_GORM, consts.COMPONENT_LOGGING),
		cfg:           cfg,
		dbs:           make(map[string]*gorm.DB),
		log:           gormx.NewLogger("mysql_gorm", cfg.LogLevel, cfg.SlowThreshold),
	}
}

func (c *GormComponent) Start(ctx context.Context) error {
	if err := c.BaseComponent.Start(ctx); err != nil {
		return err
	}
	for _, name := range sortedNames(c.cfg.DataSources) {
		if err := c.open(ctx, name, c.cfg.DataSources[name]); err != nil {
			return err
		}
	}
	logging.Infof(ctx, "[mysql_gorm] started. data sources=%v", sortedNames(c.cfg.DataSources))
	return nil
}

func (c *GormComponent) open(ctx context.Context, name string, ds *DataSourceConfig) error {
	if ds == nil {
		return fmt.Errorf("datasource %s config is nil", name)
	}
	dsn, err := buildDSN(ds)
	if err != nil {
		return fmt.Errorf("build dsn for %s failed: %w", name, err)
	}
	gdb, err := gorm.Open(mysqlDriver.New(mysqlDriver.Config{DSN: dsn}), &gorm.Config{
		Logger:                                   c.log,
		SkipDefaultTransaction:                   ds.SkipDefaultTransaction,
		PrepareStmt:                              ds.PrepareStmt,
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return fmt.Errorf("open gorm db %s failed: %w", name, err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB for %s failed: %w", name, err)
	}
	gormx.ApplyPool(sqlDB, ds.PoolConfig)
	if ds.PingOnStart {
		if err := gormx.Ping(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return fmt.Errorf("datasource %s: %w", name, err)
		}
	}
	if ds.MigrateEnabled {
		n, err := gormx.Migrate(ctx, sqlDB, ds.MigrateDir)
		if err != nil {
			_ = sqlDB.Close()
			return fmt.Errorf("datasource %s migrate: %w", name, err)
		}
		logging.Infof(ctx, "[mysql_gorm] datasource %s migrated, statements=%d", name, n)
	}

	c.mutex.Lock()
	c.dbs[name] = gdb
	c.mutex.Unlock()
	return nil
}

func (c *GormComponent) Stop(ctx context.Context) error {
	defer func() { _ = c.BaseComponent.Stop(ctx) }()
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for name, gdb := range c.dbs {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
		logging.Infof(ctx, "[mysql_gorm] datasource %s closed", name)
	}
	c.dbs = map[string]*gorm.DB{}
	return nil
}

func (c *GormComponent) HealthCheck() error {
	if err := c.BaseComponent.HealthCheck(); err != nil {
		return err
	}
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	for name, gdb := range c.dbs {
		sqlDB, err := gdb.DB()
		if err != nil {
			return fmt.Errorf("datasource %s get sql.DB failed: %w", name, err)
		}
		if err := sqlDB.Ping(); err != nil {
			return fmt.Errorf("datasource %s ping failed: %w", name, err)
		}
	}
	return nil
}

func (c *GormComponent) GetDB(name string) (*gorm.DB, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	db, ok := c.dbs[name]
	if !ok {
		return nil, fmt.Errorf("mysql_gorm datasource %s not found", name)
	}
	return db, nil
}

func sortedNames(m map[string]*DataSourceConfig) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func buildDSN(ds *DataSourceConfig) (string, error) {
	if strings.TrimSpace(ds.DSN) != "" {
		return ds.DSN, nil
	}
	if ds.Host == "" || ds.User == "" || ds.Database == "" {
		return "", errors.New("host, user, database required when dsn not provided")
	}
	port := ds.Port
	if port == 0 {
		port = 3306
	}
	params := url.Values{}
	params.Set("parseTime", "true")
	params.Set("charset", "utf8mb4")
	params.Set("loc", "Local")
	for k, v := range ds.Params {
		params.Set(k, v)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s", ds.User, ds.Password, ds.Host, port, ds.Database, params.Encode()), nil
}
