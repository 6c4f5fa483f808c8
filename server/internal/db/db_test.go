package db

import (
	"testing"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

func TestNewSQLiteRunsMigrations(t *testing.T) {
	gormDB, err := New(Config{
		Driver:   "sqlite",
		DSN:      "file::memory:?cache=shared",
		Logger:   zap.NewNop(),
		LogLevel: gormlogger.Silent,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		t.Fatalf("DB() error = %v", err)
	}
	if err := sqlDB.Ping(); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	var count int64
	if err := gormDB.Raw("SELECT count(*) FROM nodes").Scan(&count).Error; err != nil {
		t.Errorf("migrations did not create the nodes table: %v", err)
	}
}

func TestNewDefaultsToSQLite(t *testing.T) {
	if _, err := New(Config{
		DSN:      "file::memory:?cache=shared",
		Logger:   zap.NewNop(),
		LogLevel: gormlogger.Silent,
	}); err != nil {
		t.Errorf("New() with an empty Driver error = %v, want sqlite default to succeed", err)
	}
}

func TestNewRejectsUnsupportedDriver(t *testing.T) {
	_, err := New(Config{
		Driver: "mysql",
		DSN:    "unused",
		Logger: zap.NewNop(),
	})
	if err == nil {
		t.Error("New() = nil error, want error for an unsupported driver")
	}
}

func TestNewRequiresLogger(t *testing.T) {
	_, err := New(Config{Driver: "sqlite", DSN: "file::memory:?cache=shared"})
	if err == nil {
		t.Error("New() = nil error, want error when Logger is nil")
	}
}
