package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

// telemetryStoreLogger routes every message GORM would otherwise print to
// stdout through the application's *zap.Logger instead, so storage-layer
// activity sits in the same structured log stream as the rest of Statix.
type telemetryStoreLogger struct {
	zl          *zap.Logger
	level       gormlogger.LogLevel
	slowQuery   time.Duration
	quietNoRows bool
}

// newZapGORMLogger returns a gormlogger.Interface backed by the provided
// *zap.Logger. Use gormlogger.Silent to disable all GORM logging, or
// gormlogger.Info to log every SQL statement (useful during development).
//
// Statements running past slowQuery are logged as warnings so slow
// queries against the metrics/nodes tables surface without enabling full SQL
// tracing. Set quietNoRows to false to also log gorm.ErrRecordNotFound, which
// is noisy because lookups like FindNodeById hit it on every cache miss.
func newZapGORMLogger(zl *zap.Logger, level gormlogger.LogLevel) gormlogger.Interface {
	if level == 0 {
		level = gormlogger.Warn
	}
	return &telemetryStoreLogger{
		zl:          zl.Named("storelog").WithOptions(zap.AddCallerSkip(3)),
		level:       level,
		slowQuery:   200 * time.Millisecond,
		quietNoRows: true,
	}
}

// LogMode returns a copy of the logger configured at the given level. GORM
// calls this when a call site needs a one-off override (e.g. db.Debug()
// bumps the level to Info just for that statement).
func (l *telemetryStoreLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.level = level
	return &next
}

// Info logs informational messages emitted by GORM internals.
func (l *telemetryStoreLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.zl.Info(fmt.Sprintf(msg, args...))
	}
}

// Warn logs warning messages emitted by GORM internals.
func (l *telemetryStoreLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.zl.Warn(fmt.Sprintf(msg, args...))
	}
}

// Error logs error messages emitted by GORM internals.
func (l *telemetryStoreLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.zl.Error(fmt.Sprintf(msg, args...))
	}
}

// Trace logs one completed SQL statement: the statement itself, how long it
// took, and the row count it touched, then classifies the result into one of
// three buckets below.
func (l *telemetryStoreLogger) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	took := time.Since(begin)
	stmt, rows := fc()

	fields := []zap.Field{
		zap.String("statement", stmt),
		zap.Duration("took", took),
		zap.Int64("rowsAffected", rows),
		zap.String("source", utils.FileWithLineNum()),
	}

	switch {
	case err != nil && !(l.quietNoRows && errors.Is(err, gorm.ErrRecordNotFound)):
		l.zl.Error("storelog: query failed", append(fields, zap.Error(err))...)

	case l.slowQuery > 0 && took > l.slowQuery:
		l.zl.Warn("storelog: slow query", fields...)

	case l.level >= gormlogger.Info:
		l.zl.Debug("storelog: query", fields...)
	}
}
