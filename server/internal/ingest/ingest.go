// Package ingest subscribes to node telemetry over MQTT and persists it.
// Every message is decoded, validated against shared/wire's bounds, and
// dispatched to the repository layer; anything that fails any of those
// steps is logged and dropped — a single malformed node publish must never
// take down the subscriber loop.
package ingest

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/db"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/repositories"
	"github.com/GustavPetterssonBjorklund/Statix/shared/wire"
)

// reconnectDelay is how long the client backs off between broker reconnect
// attempts.
const reconnectDelay = 2 * time.Second

// RosterNotifier is signaled whenever a node's state changed in a way the
// live roster should reflect — a new metric sample or a changed system-info
// hash. LiveRoster implements this.
type RosterNotifier interface {
	NotifyChanged()
}

// Service owns the MQTT subscription that feeds telemetry into the store.
type Service struct {
	store    *repositories.Store
	logger   *zap.Logger
	roster   RosterNotifier
	client   mqtt.Client
	brokerURL string
}

// New constructs the ingest Service. Connect must be called to start
// consuming.
func New(store *repositories.Store, roster RosterNotifier, logger *zap.Logger, brokerURL string) *Service {
	return &Service{
		store:     store,
		logger:    logger.Named("ingest"),
		roster:    roster,
		brokerURL: brokerURL,
	}
}

// Connect dials the broker and subscribes to every node's metrics and
// system-info topics under the shared wildcard filter.
func (s *Service) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.brokerURL).
		SetClientID("statix-server").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(reconnectDelay).
		SetMaxReconnectInterval(reconnectDelay).
		SetOnConnectHandler(func(c mqtt.Client) {
			s.logger.Info("connected to broker", zap.String("broker", s.brokerURL))
			if token := c.Subscribe(wire.TopicFilter, 1, s.handleMessage); token.Wait() && token.Error() != nil {
				s.logger.Error("subscribe failed", zap.Error(token.Error()))
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			s.logger.Warn("broker connection lost", zap.Error(err))
		})

	s.client = mqtt.NewClient(opts)
	token := s.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		s.client.Disconnect(250)
	}()
	return nil
}

// handleMessage routes an inbound publish by its topic suffix
// (statix/nodes/<id>/metrics or .../system) to the matching handler.
func (s *Service) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	parts := strings.Split(msg.Topic(), "/")
	if len(parts) != 4 || parts[0] != "statix" || parts[1] != "nodes" {
		s.logger.Warn("dropping message on unrecognized topic", zap.String("topic", msg.Topic()))
		return
	}

	nodeIDStr, kind := parts[2], parts[3]
	nodeID, err := uuid.Parse(nodeIDStr)
	if err != nil {
		s.logger.Warn("dropping message with invalid node id", zap.String("topic", msg.Topic()))
		return
	}

	ctx := context.Background()
	switch kind {
	case "metrics":
		s.handleMetrics(ctx, nodeID, msg.Payload())
	case "system":
		s.handleSystemInfo(ctx, nodeID, msg.Payload())
	default:
		s.logger.Warn("dropping message on unknown subtopic", zap.String("topic", msg.Topic()))
	}
}

func (s *Service) handleMetrics(ctx context.Context, nodeID uuid.UUID, raw []byte) {
	var payload wire.MetricsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.logger.Warn("dropping malformed metrics payload", zap.Stringer("node_id", nodeID), zap.Error(err))
		return
	}
	if err := payload.Validate(); err != nil {
		s.logger.Warn("dropping invalid metrics payload", zap.Stringer("node_id", nodeID), zap.Error(err))
		return
	}

	m := db.Metric{
		TS:        time.UnixMilli(payload.TS).UTC(),
		CPU:       payload.CPU,
		MemUsed:   payload.MemUsed,
		MemTotal:  payload.MemTotal,
		DiskUsed:  payload.DiskUsed,
		DiskTotal: payload.DiskTotal,
		NetRx:     payload.NetRx,
		NetTx:     payload.NetTx,
	}

	if err := s.store.AppendMetric(ctx, nodeID, m); err != nil {
		s.logger.Warn("dropping metrics for unknown node", zap.Stringer("node_id", nodeID), zap.Error(err))
		return
	}
	if s.roster != nil {
		s.roster.NotifyChanged()
	}
}

func (s *Service) handleSystemInfo(ctx context.Context, nodeID uuid.UUID, raw []byte) {
	var payload wire.SystemInfoPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.logger.Warn("dropping malformed system info payload", zap.Stringer("node_id", nodeID), zap.Error(err))
		return
	}
	if err := payload.Validate(); err != nil {
		s.logger.Warn("dropping invalid system info payload", zap.Stringer("node_id", nodeID), zap.Error(err))
		return
	}

	infoJSON, err := json.Marshal(payload.Info)
	if err != nil {
		s.logger.Warn("failed to marshal system info", zap.Stringer("node_id", nodeID), zap.Error(err))
		return
	}

	result, err := s.store.UpsertSystemInfo(ctx, nodeID, payload.Hash, string(infoJSON), time.UnixMilli(payload.TS).UTC())
	if err != nil {
		s.logger.Warn("dropping system info for unknown node", zap.Stringer("node_id", nodeID), zap.Error(err))
		return
	}
	if result.Changed && s.roster != nil {
		s.roster.NotifyChanged()
	}
}
