package identity

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/db"
)

// bootstrapShellEmail is the fixed address of the shell admin account the
// prestart routine maintains. It is never a real login target — the
// account has no usable password until claimed, at which point the caller
// supplies its real email.
const bootstrapShellEmail = "bootstrap@statix.local"

// bootstrapMetadata marks an AuthToken as eligible for the bootstrap claim
// flow, distinguishing it from an ordinary password-reset token that
// happens to target the same user.
const bootstrapMetadata = `{"bootstrapToken":true}`

// BootstrapStatus reports whether the system still needs an operator to
// claim the first admin account.
func (s *Service) BootstrapStatus(ctx context.Context) (needsBootstrap bool, err error) {
	has, err := s.store.HasCredentialedAdmin(ctx)
	if err != nil {
		return false, err
	}
	return !has, nil
}

// Prestart runs once on every server start, before the HTTP listener opens.
// If a credentialed admin other than the shell account exists, any leftover
// shell admin row is purged. Otherwise a shell admin row (with the admin
// role) is ensured to exist, and an outstanding bootstrap token is rotated
// only if none is currently active — its plaintext is returned so the
// caller can surface it on the operator-visible startup log. Never over
// HTTP, never by email, never persisted in plaintext anywhere else.
func (s *Service) Prestart(ctx context.Context) (bootstrapTokenPlaintext string, err error) {
	if err := s.SeedPermissions(ctx); err != nil {
		return "", err
	}

	has, err := s.store.HasCredentialedAdminExcludingEmail(ctx, bootstrapShellEmail)
	if err != nil {
		return "", fmt.Errorf("identity: checking credentialed admin: %w", err)
	}

	if has {
		return "", s.purgeShellAdmin(ctx)
	}

	shell, err := s.store.FindUserByEmail(ctx, bootstrapShellEmail)
	if err != nil {
		shell, err = s.store.CreateShellUser(ctx, bootstrapShellEmail, bootstrapShellEmail, "Bootstrap Admin")
		if err != nil {
			return "", fmt.Errorf("identity: creating shell admin: %w", err)
		}
		adminRole, err := s.store.EnsureRole(ctx, "admin")
		if err != nil {
			return "", fmt.Errorf("identity: ensuring admin role: %w", err)
		}
		if err := s.store.AssignRole(ctx, shell.ID, adminRole.ID); err != nil {
			return "", fmt.Errorf("identity: assigning admin role to shell admin: %w", err)
		}
	}

	if _, err := s.store.FindActiveResetTokenByUser(ctx, shell.ID, db.AuthTokenResetPassword); err == nil {
		s.logger.Info("bootstrap token already active, not rotating")
		return "", nil
	}

	plaintext, hash, err := RandomToken()
	if err != nil {
		return "", err
	}
	expiresAt := time.Now().UTC().Add(ResetTokenDuration)

	if _, err := s.store.RotateResetToken(ctx, shell.ID, db.AuthTokenResetPassword, hash, expiresAt, bootstrapMetadata); err != nil {
		return "", fmt.Errorf("identity: rotating bootstrap token: %w", err)
	}

	return plaintext, nil
}

func (s *Service) purgeShellAdmin(ctx context.Context) error {
	shell, err := s.store.FindUserByEmail(ctx, bootstrapShellEmail)
	if err != nil {
		return nil // nothing to purge
	}
	if shell.PasswordHash != "" {
		// claimed already and reused the address — leave it alone, it is
		// now an ordinary credentialed account.
		return nil
	}
	if err := s.store.DeleteUserById(ctx, shell.ID); err != nil {
		return fmt.Errorf("identity: purging shell admin: %w", err)
	}
	s.logger.Info("purged stale shell admin account")
	return nil
}

// ClaimBootstrap consumes an outstanding bootstrap token and turns the
// shell admin into a real credentialed account under the caller-supplied
// email and display name.
func (s *Service) ClaimBootstrap(ctx context.Context, tokenPlaintext, email, password, displayName string) error {
	hash := HashToken(tokenPlaintext)
	token, err := s.store.FindUsableResetToken(ctx, hash)
	if err != nil {
		return ErrTokenInvalid
	}
	if token.Metadata != bootstrapMetadata {
		return ErrTokenNotEligible
	}

	user, err := s.store.FindUserById(ctx, token.UserID)
	if err != nil {
		return ErrTokenInvalid
	}
	if user.PasswordHash != "" {
		// Already claimed — token is stale relative to user state.
		return ErrTokenNotEligible
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return err
	}

	normalized := NormalizeEmail(email)
	if err := s.store.ClaimProfile(ctx, user.ID, email, normalized, displayName, passwordHash); err != nil {
		return err
	}
	if err := s.store.ConsumeToken(ctx, token.ID); err != nil {
		return err
	}
	s.recordAudit(ctx, &user.ID, "BOOTSTRAP_CLAIMED", "", "", "")

	return nil
}
