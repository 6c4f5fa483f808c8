package repositories

import (
	"context"
	"strings"

	"gorm.io/gorm"
)

// Store wraps the shared *gorm.DB connection and exposes the narrow,
// named operations each component (Identity, NodeAuth, Ingest, LiveRoster)
// needs. A single Store instance is constructed at startup and shared by
// every component — it holds no in-memory state beyond the connection pool
// GORM itself manages.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by db. db is expected to already have
// migrations applied (see internal/db.New).
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Ping verifies the underlying database connection is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// isUniqueViolation reports whether err looks like a unique-constraint
// violation across both supported drivers. SQLite (modernc) and
// PostgreSQL report this differently at the database/sql level, so this
// checks the error text rather than a driver-specific type — the same
// approach the teacher's repository layer uses for cross-driver error
// classification.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
