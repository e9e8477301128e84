package postgresgorm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/timelyrain333/bifang-sub000/infra/application/components/gormx"
	"github.com/timelyrain333/bifang-sub000/infra/application/components/logging"
	"github.com/timelyrain333/bifang-sub000/infra/application/consts"
	"github.com/timelyrain333/bifang-sub000/infra/application/core"
)

type PostgresGormComponent struct {
	*core.BaseComponent
	cfg   *Config
	dbs   map[string]*gorm.DB
	mutex sync.RWMutex
}

var _ gormx.Provider = (*PostgresGormComponent)(nil)

func NewPostgresGormComponent(cfg *Config) *PostgresGormComponent {
	return &PostgresGormComponent{
		BaseComponent: core.NewBaseComponent(consts.COMPONENT_POSTGRES_GORM, consts.COMPONENT_LOGGING),
		cfg:           cfg,
		dbs:           make(map[string]*gorm.DB),
	}
}

func NewFactory() *Factory { return &Factory{} }

type Factory struct{}

func (f *Factory) Create(cfg *Config) (core.Component, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("postgres gorm component disabled")
	}
	if len(cfg.DataSources) == 0 {
		return nil, fmt.Errorf("postgres gorm component has no data_sources")
	}
	return NewPostgresGormComponent(cfg), nil
}

func (c *PostgresGormComponent) Start(ctx context.Context) error {
	if err := c.BaseComponent.Start(ctx); err != nil {
		return err
	}
	glog := gormx.NewLogger("postgres_gorm", c.cfg.LogLevel, c.cfg.SlowThreshold)
	names := make([]string, 0, len(c.cfg.DataSources))
	for n := range c.cfg.DataSources {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		ds := c.cfg.DataSources[name]
		if ds == nil {
			return fmt.Errorf("datasource %s config is nil", name)
		}
		dsn, err := buildDSN(ds)
		if err != nil {
			return fmt.Errorf("build dsn for %s failed: %w", name, err)
		}
		gdb, err := gorm.Open(gormpg.Open(dsn), &gorm.Config{
			Logger:                 glog,
			SkipDefaultTransaction: ds.SkipDefaultTransaction,
			PrepareStmt:            ds.PrepareStmt,
		})
		if err != nil {
			return fmt.Errorf("open gorm postgres db %s failed: %w", name, err)
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
			if strings.TrimSpace(ds.MigrateDir) == "" {
				_ = sqlDB.Close()
				return fmt.Errorf("postgres_gorm datasource %s migrate_enabled=true but migrate_dir empty", name)
			}
			n, err := gormx.Migrate(ctx, sqlDB, ds.MigrateDir)
			if err != nil {
				_ = sqlDB.Close()
				return fmt.Errorf("postgres_gorm datasource %s migrations failed: %w", name, err)
			}
			logging.Infof(ctx, "[postgres_gorm] datasource %s migrated, statements=%d", name, n)
		}
		c.mutex.Lock()
		c.dbs[name] = gdb
		c.mutex.Unlock()
	}
	logging.Infof(ctx, "[postgres_gorm] started. data sources=%v", names)
	return nil
}

func (c *PostgresGormComponent) Stop(ctx context.Context) error {
	defer func() { _ = c.BaseComponent.Stop(ctx) }()
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for name, gdb := range c.dbs {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
		logging.Infof(ctx, "[postgres_gorm] datasource %s closed", name)
	}
	c.dbs = map[string]*gorm.DB{}
	return nil
}

func (c *PostgresGormComponent) HealthCheck() error {
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

func (c *PostgresGormComponent) GetDB(name string) (*gorm.DB, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	db, ok := c.dbs[name]
	if !ok {
		return nil, fmt.Errorf("postgres_gorm datasource %s not found", name)
	}
	return db, nil
}

// buildDSN libpq 风格: host=... user=... password=... dbname=... port=...
func buildDSN(ds *DataSourceConfig) (string, error) {
	if strings.TrimSpace(ds.DSN) != "" {
		return ds.DSN, nil
	}
	if ds.Host == "" || ds.User == "" || ds.Database == "" {
		return "", errors.New("host, user, database required when dsn not provided")
	}
	port := ds.Port
	if port == 0 {
		port = 5432
	}
	parts := []string{
		"host=" + ds.Host,
		"user=" + ds.User,
		"password=" + ds.Password,
		"dbname=" + ds.Database,
		fmt.Sprintf("port=%d", port),
	}
	keys := make([]string, 0, len(ds.Params))
	for k := range ds.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+ds.Params[k])
	}
	return strings.Join(parts, " "), nil
}
