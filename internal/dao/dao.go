package dao

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/timelyrain333/bifang-sub000/infra/application/components/gormx"
	mg "github.com/timelyrain333/bifang-sub000/infra/application/components/mysqlgorm"
	pg "github.com/timelyrain333/bifang-sub000/infra/application/components/postgresgorm"
)

var ErrNotFound = errors.New("record not found")

// openDB mysql_gorm 优先, 其次 postgres_gorm
func openDB(my *mg.GormComponent, pq *pg.PostgresGormComponent, dsName string) (*gorm.DB, error) {
	var p gormx.Provider
	switch {
	case my != nil:
		p = my
	case pq != nil:
		p = pq
	default:
		return nil, fmt.Errorf("no gorm component available for datasource %s", dsName)
	}
	db, err := p.GetDB(dsName)
	if err != nil {
		return nil, fmt.Errorf("get gorm db %s failed: %w", dsName, err)
	}
	return db, nil
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %v: %w", what, id, ErrNotFound)
	}
	return err
}
