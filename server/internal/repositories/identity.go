package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/db"
)

// HasCredentialedAdmin reports whether at least one user holding the admin
// role has a non-empty PasswordHash.
func (s *Store) HasCredentialedAdmin(ctx context.Context) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&db.User{}).
		Joins("JOIN user_roles ON user_roles.user_id = users.id").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("roles.name = ? AND users.password_hash != ''", "admin").
		Count(&count).Error
	return count > 0, err
}

// HasCredentialedAdminExcludingEmail is HasCredentialedAdmin but ignores the
// given normalized email — used by the prestart routine to look past the
// bootstrap shell admin account.
func (s *Store) HasCredentialedAdminExcludingEmail(ctx context.Context, emailNormalized string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&db.User{}).
		Joins("JOIN user_roles ON user_roles.user_id = users.id").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("roles.name = ? AND users.password_hash != '' AND users.email_normalized != ?", "admin", emailNormalized).
		Count(&count).Error
	return count > 0, err
}

// FindUserByEmail looks up a user by normalized email.
func (s *Store) FindUserByEmail(ctx context.Context, emailNormalized string) (*db.User, error) {
	var u db.User
	if err := s.db.WithContext(ctx).First(&u, "email_normalized = ?", emailNormalized).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// FindUserById looks up a user by ID.
func (s *Store) FindUserById(ctx context.Context, id uuid.UUID) (*db.User, error) {
	var u db.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// CreateShellUser inserts a user row with no PasswordHash — used both for
// the bootstrap admin and for CreateUser's admin-provisioned accounts.
func (s *Store) CreateShellUser(ctx context.Context, email, emailNormalized, displayName string) (*db.User, error) {
	u := &db.User{
		Email:           email,
		EmailNormalized: emailNormalized,
		DisplayName:     displayName,
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return u, nil
}

// UpdateProfileAndPassword sets PasswordHash/EmailVerifiedAt and clears
// lockout state — the completion step of SetPassword.
func (s *Store) UpdateProfileAndPassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", userID).Updates(map[string]any{
		"password_hash":      passwordHash,
		"email_verified_at":  now,
		"failed_login_count": 0,
		"locked_until":       nil,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimProfile sets email/emailNormalized/displayName alongside password and
// verification state in one update — the bootstrap claim's completion step.
func (s *Store) ClaimProfile(ctx context.Context, userID uuid.UUID, email, emailNormalized, displayName, passwordHash string) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", userID).Updates(map[string]any{
		"email":              email,
		"email_normalized":   emailNormalized,
		"display_name":       displayName,
		"password_hash":      passwordHash,
		"email_verified_at":  now,
		"failed_login_count": 0,
		"locked_until":       nil,
	})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrConflict
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePassword rewrites only the password hash (admin-initiated reset
// outside the token flow is not exposed via HTTP but the primitive is kept
// generic).
func (s *Store) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	res := s.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", userID).Update("password_hash", passwordHash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordLoginSuccess resets the failure counter and stamps login metadata.
func (s *Store) RecordLoginSuccess(ctx context.Context, userID uuid.UUID, ip string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", userID).Updates(map[string]any{
		"failed_login_count": 0,
		"last_login_at":      now,
		"last_login_ip":      ip,
	}).Error
}

// RecordLoginFailure increments the failure counter.
func (s *Store) RecordLoginFailure(ctx context.Context, userID uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", userID).
		UpdateColumn("failed_login_count", gorm.Expr("failed_login_count + 1")).Error
}

// DeleteUserById removes a user, cascading Sessions/AuthTokens/UserRoles;
// AuditLog rows referencing the user survive with UserID nulled.
func (s *Store) DeleteUserById(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&db.AuditLog{}).Where("user_id = ?", id).Update("user_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&db.Session{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&db.AuthToken{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&db.UserRole{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&db.User{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// UserWithRoles is the projection ListUsersWithRoles returns.
type UserWithRoles struct {
	User  db.User
	Roles []db.Role
}

// ListUsersWithRoles returns every user joined with their assigned roles.
func (s *Store) ListUsersWithRoles(ctx context.Context) ([]UserWithRoles, error) {
	var users []db.User
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, err
	}

	out := make([]UserWithRoles, 0, len(users))
	for _, u := range users {
		roles, err := s.rolesForUser(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, UserWithRoles{User: u, Roles: roles})
	}
	return out, nil
}

func (s *Store) rolesForUser(ctx context.Context, userID uuid.UUID) ([]db.Role, error) {
	var roles []db.Role
	err := s.db.WithContext(ctx).
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Find(&roles).Error
	return roles, err
}
