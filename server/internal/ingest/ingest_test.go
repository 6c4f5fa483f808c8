package ingest

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/db"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/repositories"
	"github.com/GustavPetterssonBjorklund/Statix/shared/wire"
)

type countingRoster struct {
	notified atomic.Int32
}

func (c *countingRoster) NotifyChanged() { c.notified.Add(1) }

func newTestIngest(t *testing.T) (*Service, *countingRoster, uuid.UUID) {
	t.Helper()
	gormDB, err := db.New(db.Config{
		Driver:   "sqlite",
		DSN:      "file:" + t.Name() + "?mode=memory&cache=shared",
		Logger:   zap.NewNop(),
		LogLevel: gormlogger.Silent,
	})
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	store := repositories.New(gormDB)
	roster := &countingRoster{}

	node, err := store.CreateNode(context.Background(), "web-1", "hash")
	if err != nil {
		t.Fatalf("CreateNode() error = %v", err)
	}

	return New(store, roster, zap.NewNop(), "tcp://unused:1883"), roster, node.ID
}

func TestHandleMetricsValid(t *testing.T) {
	svc, roster, nodeID := newTestIngest(t)

	payload := wire.MetricsPayload{
		V: wire.PayloadVersion, TS: time.Now().UnixMilli(),
		CPU: 0.3, MemUsed: 100, MemTotal: 200,
		DiskUsed: 10, DiskTotal: 100,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	svc.handleMetrics(context.Background(), nodeID, raw)

	if roster.notified.Load() != 1 {
		t.Errorf("roster notified %d times, want 1", roster.notified.Load())
	}

	rows, err := svc.store.ListRecentMetrics(context.Background(), nodeID, 10)
	if err != nil {
		t.Fatalf("ListRecentMetrics() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("ListRecentMetrics() returned %d rows, want 1", len(rows))
	}
}

func TestHandleMetricsMalformedJSON(t *testing.T) {
	svc, roster, nodeID := newTestIngest(t)
	svc.handleMetrics(context.Background(), nodeID, []byte("not json"))
	if roster.notified.Load() != 0 {
		t.Error("malformed payload should not notify the roster")
	}
}

func TestHandleMetricsInvalidBounds(t *testing.T) {
	svc, roster, nodeID := newTestIngest(t)
	payload := wire.MetricsPayload{V: wire.PayloadVersion, TS: time.Now().UnixMilli(), CPU: 5} // out of [0,1]
	raw, _ := json.Marshal(payload)

	svc.handleMetrics(context.Background(), nodeID, raw)
	if roster.notified.Load() != 0 {
		t.Error("an out-of-bounds payload should not notify the roster")
	}
}

func TestHandleMetricsUnknownNode(t *testing.T) {
	svc, roster, _ := newTestIngest(t)
	payload := wire.MetricsPayload{
		V: wire.PayloadVersion, TS: time.Now().UnixMilli(),
		CPU: 0.1, MemUsed: 1, MemTotal: 2, DiskUsed: 1, DiskTotal: 2,
	}
	raw, _ := json.Marshal(payload)

	svc.handleMetrics(context.Background(), uuid.New(), raw)
	if roster.notified.Load() != 0 {
		t.Error("metrics for an unknown node should not notify the roster")
	}
}

func TestHandleSystemInfoChangedNotifies(t *testing.T) {
	svc, roster, nodeID := newTestIngest(t)
	payload := wire.SystemInfoPayload{
		V: wire.PayloadVersion, TS: time.Now().UnixMilli(), Hash: "abc123",
		Info: wire.SystemInfo{
			OSPlatform: "linux", OSArch: "amd64", Hostname: "node-1",
			CPUCores: 4, MemTotal: 1024,
		},
	}
	raw, _ := json.Marshal(payload)

	svc.handleSystemInfo(context.Background(), nodeID, raw)
	if roster.notified.Load() != 1 {
		t.Errorf("roster notified %d times, want 1 on first system info", roster.notified.Load())
	}

	// Same hash again must not notify a second time.
	svc.handleSystemInfo(context.Background(), nodeID, raw)
	if roster.notified.Load() != 1 {
		t.Errorf("roster notified %d times, want still 1 for an unchanged hash", roster.notified.Load())
	}
}
