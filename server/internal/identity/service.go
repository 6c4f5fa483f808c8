package identity

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/db"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/repositories"
)

const (
	// SessionDuration is how long a login session stays valid.
	SessionDuration = 7 * 24 * time.Hour
	// ResetTokenDuration is how long a setup/reset/bootstrap token stays
	// usable before it must be rotated.
	ResetTokenDuration = time.Hour
)

// Service implements the Identity component: Login, Me, Logout, the
// bootstrap state machine, user lifecycle, and RBAC evaluation — all built
// directly on top of the Store.
type Service struct {
	store  *repositories.Store
	logger *zap.Logger
}

// New constructs an identity Service.
func New(store *repositories.Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger.Named("identity")}
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LoginResult is what a successful Login returns to the HTTP layer.
type LoginResult struct {
	BearerPlaintext string
	ExpiresAt       time.Time
	User            db.User
}

// Login authenticates an email/password pair. Every failure mode —
// nonexistent user, shell user, wrong password — maps to the same opaque
// ErrInvalidCredentials so login responses never leak whether an email is
// registered.
func (s *Service) Login(ctx context.Context, email, password, ip, userAgent string) (*LoginResult, error) {
	normalized := NormalizeEmail(email)
	if _, err := mail.ParseAddress(normalized); err != nil {
		s.recordAudit(ctx, nil, "LOGIN_FAILED", ip, userAgent, "malformed email")
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.FindUserByEmail(ctx, normalized)
	if err != nil {
		s.recordAudit(ctx, nil, "LOGIN_FAILED", ip, userAgent, normalized)
		return nil, ErrInvalidCredentials
	}

	if user.PasswordHash == "" || !VerifyPassword(user.PasswordHash, password) {
		if user.PasswordHash != "" {
			_ = s.store.RecordLoginFailure(ctx, user.ID)
		}
		s.recordAudit(ctx, &user.ID, "LOGIN_FAILED", ip, userAgent, "")
		return nil, ErrInvalidCredentials
	}

	if user.IsDisabled {
		s.recordAudit(ctx, &user.ID, "LOGIN_FAILED", ip, userAgent, "account disabled")
		return nil, ErrAccountDisabled
	}

	plaintext, hash, err := RandomToken()
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().UTC().Add(SessionDuration)

	if _, err := s.store.CreateSession(ctx, user.ID, hash, expiresAt, ip, userAgent); err != nil {
		return nil, err
	}
	if err := s.store.RecordLoginSuccess(ctx, user.ID, ip); err != nil {
		s.logger.Warn("failed to record login success", zap.Error(err))
	}
	s.recordAudit(ctx, &user.ID, "LOGIN_SUCCESS", ip, userAgent, "")

	return &LoginResult{BearerPlaintext: plaintext, ExpiresAt: expiresAt, User: *user}, nil
}

// recordAudit writes an AuditLog row and logs, rather than swallows, a write
// failure — the audit trail is the only record of security-relevant events
// and a silent drop would leave an incident with no trace.
func (s *Service) recordAudit(ctx context.Context, userID *uuid.UUID, action, ip, userAgent, details string) {
	if err := s.store.RecordAudit(ctx, userID, action, ip, userAgent, details); err != nil {
		s.logger.Warn("failed to record audit log entry", zap.String("action", action), zap.Error(err))
	}
}

// MeResult is what Me returns: the user snapshot plus the sorted union of
// permission codes granted via their roles.
type MeResult struct {
	User        db.User
	Permissions []string
}

// Me resolves a bearer plaintext to the active session's user and touches
// the session's LastSeenAt.
func (s *Service) Me(ctx context.Context, bearerPlaintext string) (*MeResult, error) {
	hash := HashToken(bearerPlaintext)
	sess, err := s.store.FindActiveSessionByTokenHash(ctx, hash)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	if err := s.store.TouchSession(ctx, sess.Session.ID); err != nil {
		s.logger.Warn("failed to touch session", zap.Error(err))
	}
	return &MeResult{User: sess.User, Permissions: sess.Permissions}, nil
}

// Logout revokes the session matching the presented bearer. Idempotent —
// logging out twice, or with an already-invalid bearer, is not an error.
func (s *Service) Logout(ctx context.Context, bearerPlaintext string) error {
	return s.store.RevokeByTokenHash(ctx, HashToken(bearerPlaintext))
}

// AuthenticatedUser resolves a bearer to its active session for middleware
// use. Unlike Me it does not touch the session's LastSeenAt — that would
// mean a DB write on every authenticated request.
func (s *Service) AuthenticatedUser(ctx context.Context, bearerPlaintext string) (*repositories.SessionWithUser, error) {
	hash := HashToken(bearerPlaintext)
	sess, err := s.store.FindActiveSessionByTokenHash(ctx, hash)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	return sess, nil
}

// HasPermission reports whether codes contains any of required (OR
// semantics) — the check used for both static and dynamic per-node codes.
func HasPermission(codes []string, required ...string) bool {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

// NodeReadCode returns the dynamic per-node read permission code.
func NodeReadCode(nodeID uuid.UUID) string {
	return "node:read:" + nodeID.String()
}

// NodeWriteCode returns the dynamic per-node write permission code.
func NodeWriteCode(nodeID uuid.UUID) string {
	return "node:write:" + nodeID.String()
}

// HasAnyWithPrefix reports whether codes contains at least one code starting
// with prefix — used to gate multi-node listing routes on "the broad static
// code, or any per-node dynamic code" without enumerating every node id.
func HasAnyWithPrefix(codes []string, prefix string) bool {
	for _, c := range codes {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}
