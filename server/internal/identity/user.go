package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/repositories"
)

// CreateUserResult is returned once at account creation: the setup token
// plaintext the admin hands (or emails) to the new user.
type CreateUserResult struct {
	UserID               uuid.UUID
	Email                string
	SetupTokenPlaintext  string
	SetupTokenExpiresAt  time.Time
}

// CreateUser provisions a shell account plus the "user" role and a single-
// use setup token, admin-only.
func (s *Service) CreateUser(ctx context.Context, email, displayName string) (*CreateUserResult, error) {
	normalized := NormalizeEmail(email)

	user, err := s.store.CreateShellUser(ctx, email, normalized, displayName)
	if err != nil {
		return nil, err
	}

	userRole, err := s.store.EnsureRole(ctx, "user")
	if err != nil {
		return nil, err
	}
	if err := s.store.AssignRole(ctx, user.ID, userRole.ID); err != nil {
		return nil, err
	}

	plaintext, hash, err := RandomToken()
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().UTC().Add(ResetTokenDuration)

	token, err := s.store.CreateResetToken(ctx, user.ID, "VERIFY_EMAIL", hash, expiresAt, "")
	if err != nil {
		return nil, err
	}
	_ = token

	return &CreateUserResult{
		UserID:              user.ID,
		Email:               user.Email,
		SetupTokenPlaintext: plaintext,
		SetupTokenExpiresAt: expiresAt,
	}, nil
}

// SetPassword completes account setup or a password reset: locates a
// usable reset token, hashes and stores the new password, marks the email
// verified, and consumes the token so it cannot be replayed.
func (s *Service) SetPassword(ctx context.Context, tokenPlaintext, password string) error {
	hash := HashToken(tokenPlaintext)
	token, err := s.store.FindUsableResetToken(ctx, hash)
	if err != nil {
		return ErrTokenInvalid
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return err
	}

	if err := s.store.UpdateProfileAndPassword(ctx, token.UserID, passwordHash); err != nil {
		return err
	}
	return s.store.ConsumeToken(ctx, token.ID)
}

// ReplaceUserRoles sets a user's role membership to exactly roleNames,
// failing on unresolved names and refusing to leave the system without a
// credentialed admin.
func (s *Service) ReplaceUserRoles(ctx context.Context, userID uuid.UUID, roleNames []string) error {
	roles, err := s.store.FindRolesByNames(ctx, roleNames)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrUnknownRole
		}
		return err
	}

	ids := make([]uuid.UUID, len(roles))
	for i, r := range roles {
		ids[i] = r.ID
	}

	err = s.store.ReplaceUserRoles(ctx, userID, ids)
	if errors.Is(err, repositories.ErrLastAdmin) {
		return ErrLastAdmin
	}
	if err != nil {
		return err
	}

	s.recordAudit(ctx, &userID, "ROLE_CHANGED", "", "", "")
	return nil
}
