// Package nodeauth implements node credential issuance and the unauthenticated
// token-exchange agents use to obtain broker coordinates: minting the
// long-lived bearer a node authenticates with, and resolving a presented
// bearer back to its Node to hand out MQTT credentials.
package nodeauth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/db"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/identity"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/repositories"
)

// ErrInvalidToken is returned by ExchangeNodeToken when the presented node
// bearer does not match the stored hash, or the node has none.
var ErrInvalidToken = errors.New("nodeauth: invalid node token")

// BrokerConfig is the shared MQTT broker coordinates handed to every node on
// a successful exchange. This version does not rotate credentials per node —
// the schema reserves Node.MQTTUsername/MQTTPasswordHash/
// MQTTPasswordExpiresAt for that, unused today.
type BrokerConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// BrokerCredentials is the exchange response body.
type BrokerCredentials struct {
	Host      string  `json:"host"`
	Port      int     `json:"port"`
	Username  string  `json:"username"`
	Password  string  `json:"password"`
	ExpiresAt *string `json:"expiresAt"`
}

// Service mints node bearers and exchanges them for broker coordinates.
type Service struct {
	store  *repositories.Store
	logger *zap.Logger
	broker BrokerConfig
}

// New constructs a node-auth Service.
func New(store *repositories.Store, logger *zap.Logger, broker BrokerConfig) *Service {
	return &Service{store: store, logger: logger.Named("nodeauth"), broker: broker}
}

// CreateNodeToken mints a 32-byte random bearer, returning the plaintext
// (shown once to the caller) and its hash (the only form ever stored).
func CreateNodeToken() (plaintext, hash string, err error) {
	return identity.RandomToken()
}

// CreateNodeResult is returned once at node registration: the bearer
// plaintext the operator copies into the agent's configuration.
type CreateNodeResult struct {
	Node           db.Node
	TokenPlaintext string
}

// CreateNode registers a node and mints its long-lived bearer. The dynamic
// per-node read/write permission codes are provisioned immediately so they
// can be granted to users before the node ever reports in. actorUserID and ip
// identify the operator that requested the registration, for the audit trail
// — actorUserID may be nil when the caller has no session (e.g. a script
// driving the admin API directly).
func (s *Service) CreateNode(ctx context.Context, name string, actorUserID *uuid.UUID, ip string) (*CreateNodeResult, error) {
	plaintext, hash, err := CreateNodeToken()
	if err != nil {
		return nil, err
	}

	node, err := s.store.CreateNode(ctx, name, hash)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.EnsurePermission(ctx, identity.NodeReadCode(node.ID), "read telemetry for node "+node.Name); err != nil {
		return nil, err
	}
	if _, err := s.store.EnsurePermission(ctx, identity.NodeWriteCode(node.ID), "manage node "+node.Name); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actorUserID, "NODE_CREATED", ip, node.Name)

	return &CreateNodeResult{Node: *node, TokenPlaintext: plaintext}, nil
}

// DeleteNode removes a node and records the deletion in the audit trail.
// actorUserID and ip identify the operator that requested the deletion.
func (s *Service) DeleteNode(ctx context.Context, nodeID uuid.UUID, actorUserID *uuid.UUID, ip string) error {
	node, err := s.store.FindNodeById(ctx, nodeID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteNodeById(ctx, nodeID); err != nil {
		return err
	}
	s.recordAudit(ctx, actorUserID, "NODE_DELETED", ip, node.Name)
	return nil
}

// recordAudit writes an AuditLog row and logs, rather than swallows, a write
// failure — the audit trail is the only record of security-relevant events
// and a silent drop would leave an incident with no trace.
func (s *Service) recordAudit(ctx context.Context, actorUserID *uuid.UUID, action, ip, details string) {
	if err := s.store.RecordAudit(ctx, actorUserID, action, ip, "", details); err != nil {
		s.logger.Warn("failed to record audit log entry", zap.String("action", action), zap.Error(err))
	}
}

// ExchangeNodeToken fetches the node by ID, fails if it has no
// AuthTokenHash, hashes the presented plaintext and compares it against the
// stored hash. On success it returns the shared broker coordinates this
// server is configured with; ExpiresAt is always nil in this version.
func (s *Service) ExchangeNodeToken(ctx context.Context, nodeID, nodeTokenPlaintext string) (*BrokerCredentials, error) {
	id, err := parseNodeID(nodeID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	node, err := s.store.FindNodeById(ctx, id)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if node.AuthTokenHash == "" {
		return nil, ErrInvalidToken
	}

	if repositories.HashNodeToken(nodeTokenPlaintext) != node.AuthTokenHash {
		return nil, ErrInvalidToken
	}

	return &BrokerCredentials{
		Host:      s.broker.Host,
		Port:      s.broker.Port,
		Username:  s.broker.Username,
		Password:  s.broker.Password,
		ExpiresAt: nil,
	}, nil
}

func parseNodeID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}
