package gormx

import "gorm.io/gorm"

// Provider 由 mysql_gorm / postgres_gorm 组件实现, 业务层只依赖此接口
type Provider interface {
	GetDB(name string) (*gorm.DB, error)
}
