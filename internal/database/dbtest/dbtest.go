// Package dbtest opens migrated throwaway databases for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"leadlynx/internal/database"

	"github.com/glebarez/sqlite"
	"github.com/pterm/pterm"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Logger returns a trace-level logger for tests
func Logger() *pterm.Logger {
	return pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace)
}

// Open creates a fresh SQLite database in the test's temp dir.
// A single connection serializes access so tests are deterministic.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "leadlynx_test.db")
	db, err := gorm.Open(sqlite.Open(database.DSN(path)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}
