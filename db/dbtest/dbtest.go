// Package dbtest opens throwaway migrated databases for tests
package dbtest

import (
	"arc/auth-api/db"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// New returns a migrated sqlite database stored in t.TempDir(). A single
// connection is used so concurrent writers queue instead of failing with
// SQLITE_BUSY.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000"

	d, err := db.Open(sqlite.Open(dsn))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	sqlDB, err := d.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.Migrate(d); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	return d
}
