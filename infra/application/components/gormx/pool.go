// Package gormx holds the pieces shared by the gorm-backed database components.
package gormx

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PoolConfig 连接池参数, mysql_gorm / postgres_gorm 共用
type PoolConfig struct {
	MaxOpenConns int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLife  time.Duration `yaml:"conn_max_life" json:"conn_max_life"`
	ConnMaxIdle  time.Duration `yaml:"conn_max_idle" json:"conn_max_idle"`
	PingOnStart  bool          `yaml:"ping_on_start" json:"ping_on_start"`
}

func ApplyPool(db *sql.DB, p PoolConfig) {
	open, idle, life := p.MaxOpenConns, p.MaxIdleConns, p.ConnMaxLife
	if open <= 0 {
		open = 50
	}
	if idle <= 0 {
		idle = 10
	}
	if life <= 0 {
		life = time.Hour
	}
	db.SetMaxOpenConns(open)
	db.SetMaxIdleConns(idle)
	db.SetConnMaxLifetime(life)
	if p.ConnMaxIdle > 0 {
		db.SetConnMaxIdleTime(p.ConnMaxIdle)
	}
}

func Ping(ctx context.Context, db *sql.DB) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
