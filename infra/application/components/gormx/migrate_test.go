package gormx

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestSplitStatements(t *testing.T) {
	got := SplitStatements("-- header\nCREATE TABLE a (id INT);\n\n  ;\nINSERT INTO a VALUES (1);\n")
	require.Equal(t, []string{"CREATE TABLE a (id INT)", "INSERT INTO a VALUES (1)"}, got)
}

func TestMigrate_LexicalOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "002_seed.sql"), []byte("INSERT INTO t (id) VALUES (7);"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_init.sql"), []byte("CREATE TABLE IF NOT EXISTS t (id INTEGER);"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: NewLogger("test", "silent", 0)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	n, err := Migrate(context.Background(), sqlDB, dir)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	var id int
	require.NoError(t, sqlDB.QueryRow("SELECT id FROM t").Scan(&id))
	require.Equal(t, 7, id)
}
