package liveroster

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/db"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/repositories"
)

func newTestHub(t *testing.T) *Hub {
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
	return NewHub(repositories.New(gormDB), zap.NewNop())
}

func TestBuildFrameEmpty(t *testing.T) {
	h := newTestHub(t)
	raw, err := h.buildFrame(context.Background())
	if err != nil {
		t.Fatalf("buildFrame() error = %v", err)
	}

	var frame snapshotFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("decoding frame: %v", err)
	}
	if frame.Type != "nodes_snapshot" {
		t.Errorf("frame.Type = %q, want nodes_snapshot", frame.Type)
	}
	if len(frame.Nodes) != 0 {
		t.Errorf("buildFrame() returned %d nodes for an empty store, want 0", len(frame.Nodes))
	}
}

func TestBuildFrameIncludesCreatedNode(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	node, err := h.store.CreateNode(ctx, "web-1", "hash")
	if err != nil {
		t.Fatalf("CreateNode() error = %v", err)
	}

	raw, err := h.buildFrame(ctx)
	if err != nil {
		t.Fatalf("buildFrame() error = %v", err)
	}

	var frame snapshotFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("decoding frame: %v", err)
	}
	if len(frame.Nodes) != 1 {
		t.Fatalf("buildFrame() returned %d nodes, want 1", len(frame.Nodes))
	}
	if frame.Nodes[0].ID != node.ID.String() {
		t.Errorf("buildFrame() node ID = %q, want %q", frame.Nodes[0].ID, node.ID.String())
	}
	if frame.Nodes[0].CPU != nil {
		t.Error("a node with no metrics yet should have a nil CPU field")
	}
}

func TestNotifyChangedNeverBlocks(t *testing.T) {
	h := newTestHub(t)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.NotifyChanged()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("NotifyChanged() blocked")
	}
}

func TestRunBroadcastsAfterChange(t *testing.T) {
	h := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)

	c := &client{send: make(chan []byte, 1)}
	h.register <- c

	select {
	case <-c.send:
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive the initial roster snapshot after registering")
	}

	h.NotifyChanged()

	select {
	case _, ok := <-c.send:
		if !ok {
			t.Fatal("client was dropped instead of receiving the post-change snapshot")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive a roster snapshot after registering and signaling a change")
	}
}
