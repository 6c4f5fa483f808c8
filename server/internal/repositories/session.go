package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/db"
)

// CreateResetToken inserts a single-use AuthToken row.
func (s *Store) CreateResetToken(ctx context.Context, userID uuid.UUID, tokenType db.AuthTokenType, tokenHash string, expiresAt time.Time, metadata string) (*db.AuthToken, error) {
	t := &db.AuthToken{
		UserID:    userID,
		Type:      tokenType,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		Metadata:  metadata,
	}
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return t, nil
}

// RotateResetToken deletes any prior unconsumed token of tokenType for the
// user, then inserts a fresh one — the mechanism behind "at most one active
// reset token per user".
func (s *Store) RotateResetToken(ctx context.Context, userID uuid.UUID, tokenType db.AuthTokenType, tokenHash string, expiresAt time.Time, metadata string) (*db.AuthToken, error) {
	var created *db.AuthToken
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND type = ? AND consumed_at IS NULL", userID, tokenType).
			Delete(&db.AuthToken{}).Error; err != nil {
			return err
		}
		t := &db.AuthToken{
			UserID:    userID,
			Type:      tokenType,
			TokenHash: tokenHash,
			ExpiresAt: expiresAt,
			Metadata:  metadata,
		}
		if err := tx.Create(t).Error; err != nil {
			return err
		}
		created = t
		return nil
	})
	return created, err
}

// FindUsableResetToken returns the token matching tokenHash if it is
// unconsumed and unexpired.
func (s *Store) FindUsableResetToken(ctx context.Context, tokenHash string) (*db.AuthToken, error) {
	var t db.AuthToken
	err := s.db.WithContext(ctx).
		Where("token_hash = ? AND consumed_at IS NULL AND expires_at > ?", tokenHash, time.Now().UTC()).
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// ConsumeToken marks a token consumed. Idempotent at the storage layer —
// callers must check FindUsableResetToken first to reject a reused token.
func (s *Store) ConsumeToken(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&db.AuthToken{}).Where("id = ?", id).Update("consumed_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindActiveResetTokenByUser returns the user's current unconsumed,
// unexpired token of the given type, if any.
func (s *Store) FindActiveResetTokenByUser(ctx context.Context, userID uuid.UUID, tokenType db.AuthTokenType) (*db.AuthToken, error) {
	var t db.AuthToken
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND consumed_at IS NULL AND expires_at > ?", userID, tokenType, time.Now().UTC()).
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time, ip, userAgent string) (*db.Session, error) {
	sess := &db.Session{
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		IP:        ip,
		UserAgent: userAgent,
	}
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return sess, nil
}

// SessionWithUser is the projection FindActiveSessionByTokenHash returns —
// the session joined with its user and the user's effective permission
// codes, exactly what Me/Authenticate needs in one call.
type SessionWithUser struct {
	Session     db.Session
	User        db.User
	Permissions []string
}

// FindActiveSessionByTokenHash returns the session (joined with user and
// permissions) if it is active: RevokedAt IS NULL AND ExpiresAt > now.
func (s *Store) FindActiveSessionByTokenHash(ctx context.Context, tokenHash string) (*SessionWithUser, error) {
	var sess db.Session
	err := s.db.WithContext(ctx).
		Where("token_hash = ? AND revoked_at IS NULL AND expires_at > ?", tokenHash, time.Now().UTC()).
		First(&sess).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	user, err := s.FindUserById(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	codes, err := s.EffectivePermissionCodes(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	return &SessionWithUser{Session: sess, User: *user, Permissions: codes}, nil
}

// TouchSession advances LastSeenAt on an active session.
func (s *Store) TouchSession(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&db.Session{}).Where("id = ?", id).Update("last_seen_at", now).Error
}

// RevokeByTokenHash revokes the session matching tokenHash. Idempotent —
// revoking an already-revoked or nonexistent session is not an error.
func (s *Store) RevokeByTokenHash(ctx context.Context, tokenHash string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&db.Session{}).
		Where("token_hash = ? AND revoked_at IS NULL", tokenHash).
		Update("revoked_at", now).Error
}
