// Package liveroster pushes a debounced snapshot of every node's current
// state to connected browsers over a single WebSocket endpoint. A single
// owner goroutine (Hub.Run) serializes all client registration and
// broadcast so no locking is needed around the client set.
package liveroster

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/repositories"
)

// debounceWindow coalesces bursts of node changes (many nodes publishing
// within the same second) into a single snapshot push.
const debounceWindow = 150 * time.Millisecond

// NodeSnapshot is one node's entry in a roster broadcast.
type NodeSnapshot struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	LastSeenAt    string  `json:"lastSeenAt"`
	PublishCount  int64   `json:"publishCount"`
	CPU           *float64 `json:"cpu,omitempty"`
	MemUsed       *float64 `json:"memUsed,omitempty"`
	MemTotal      *float64 `json:"memTotal,omitempty"`
	DiskUsed      *float64 `json:"diskUsed,omitempty"`
	DiskTotal     *float64 `json:"diskTotal,omitempty"`
	NetRx         *float64 `json:"netRx,omitempty"`
	NetTx         *float64 `json:"netTx,omitempty"`
	MetricTS      *string `json:"metricTs,omitempty"`
	SystemInfo    json.RawMessage `json:"systemInfo,omitempty"`
}

// snapshotFrame is the wire shape for a full roster broadcast.
type snapshotFrame struct {
	Type  string         `json:"type"`
	Nodes []NodeSnapshot `json:"nodes"`
}

// Hub owns the set of connected /ws/nodes clients and the debounce timer
// that coalesces NotifyChanged signals into broadcasts.
type Hub struct {
	store  *repositories.Store
	logger *zap.Logger

	register   chan *client
	unregister chan *client
	changed    chan struct{}

	clients map[*client]struct{}
}

// NewHub constructs an idle Hub. Call Run in a goroutine to start it.
func NewHub(store *repositories.Store, logger *zap.Logger) *Hub {
	return &Hub{
		store:      store,
		logger:     logger.Named("liveroster"),
		register:   make(chan *client, 16),
		unregister: make(chan *client, 16),
		changed:    make(chan struct{}, 1),
		clients:    make(map[*client]struct{}),
	}
}

// NotifyChanged signals that some node's state changed. It never blocks —
// the channel is a single-slot coalescing buffer, so a burst of signals
// collapses to one pending broadcast.
func (h *Hub) NotifyChanged() {
	select {
	case h.changed <- struct{}{}:
	default:
	}
}

// Run is the hub's single-owner event loop. It must run in its own
// goroutine and exits when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	var debounce *time.Timer
	var debounceC <-chan time.Time

	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.pushOne(ctx, c)

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case <-h.changed:
			if debounce == nil {
				debounce = time.NewTimer(debounceWindow)
				debounceC = debounce.C
			}

		case <-debounceC:
			debounce = nil
			debounceC = nil
			h.broadcast(ctx)

		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[*client]struct{})
			return
		}
	}
}

// ServeHTTP upgrades the connection and hands it off to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := newClient(h, w, r, h.logger)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	c.run()
}

func (h *Hub) broadcast(ctx context.Context) {
	frame, err := h.buildFrame(ctx)
	if err != nil {
		h.logger.Warn("failed to build roster snapshot", zap.Error(err))
		return
	}
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("dropping slow roster client")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) pushOne(ctx context.Context, c *client) {
	frame, err := h.buildFrame(ctx)
	if err != nil {
		h.logger.Warn("failed to build initial roster snapshot", zap.Error(err))
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

func (h *Hub) buildFrame(ctx context.Context) ([]byte, error) {
	rows, err := h.store.ListNodesWithStats(ctx)
	if err != nil {
		return nil, err
	}

	nodes := make([]NodeSnapshot, 0, len(rows))
	for _, row := range rows {
		snap := NodeSnapshot{
			ID:           row.Node.ID.String(),
			Name:         row.Node.Name,
			LastSeenAt:   row.Node.LastSeenAt.UTC().Format(time.RFC3339),
			PublishCount: row.PublishCount,
		}
		if row.LatestMetric != nil {
			m := row.LatestMetric
			snap.CPU = &m.CPU
			snap.MemUsed = &m.MemUsed
			snap.MemTotal = &m.MemTotal
			snap.DiskUsed = &m.DiskUsed
			snap.DiskTotal = &m.DiskTotal
			snap.NetRx = &m.NetRx
			snap.NetTx = &m.NetTx
			ts := m.TS.UTC().Format(time.RFC3339)
			snap.MetricTS = &ts
		}
		if row.SystemInfo != nil {
			snap.SystemInfo = json.RawMessage(row.SystemInfo.Payload)
		}
		nodes = append(nodes, snap)
	}

	return json.Marshal(snapshotFrame{Type: "nodes_snapshot", Nodes: nodes})
}
