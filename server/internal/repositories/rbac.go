package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/db"
)

// EnsureRole returns the role with the given name, creating it if absent.
// Used both for the reserved "admin"/"user" seeds and for admin-created
// roles.
func (s *Store) EnsureRole(ctx context.Context, name string) (*db.Role, error) {
	var r db.Role
	err := s.db.WithContext(ctx).First(&r, "name = ?", name).Error
	if err == nil {
		return &r, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	r = db.Role{Name: name}
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		if isUniqueViolation(err) {
			return s.EnsureRole(ctx, name)
		}
		return nil, err
	}
	return &r, nil
}

// EnsurePermission returns the permission with the given code, creating it
// if absent — used both for static seed codes and for lazily-provisioned
// dynamic per-node codes (node:read:<id>, node:write:<id>).
func (s *Store) EnsurePermission(ctx context.Context, code, description string) (*db.Permission, error) {
	var p db.Permission
	err := s.db.WithContext(ctx).First(&p, "code = ?", code).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	p = db.Permission{Code: code, Description: description}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		if isUniqueViolation(err) {
			return s.EnsurePermission(ctx, code, description)
		}
		return nil, err
	}
	return &p, nil
}

// AssignRole attaches role to user, idempotently.
func (s *Store) AssignRole(ctx context.Context, userID, roleID uuid.UUID) error {
	ur := db.UserRole{UserID: userID, RoleID: roleID}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&ur).Error
	if err != nil && isUniqueViolation(err) {
		return nil
	}
	return err
}

// FindRolesByNames resolves role names to rows, failing if any name does
// not resolve to an existing role.
func (s *Store) FindRolesByNames(ctx context.Context, names []string) ([]db.Role, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var roles []db.Role
	if err := s.db.WithContext(ctx).Where("name IN ?", names).Find(&roles).Error; err != nil {
		return nil, err
	}
	if len(roles) != len(unique(names)) {
		return nil, ErrNotFound
	}
	return roles, nil
}

func unique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// ReplaceUserRoles sets userID's role membership to exactly roleIDs
// (set-equality), refusing to complete if doing so would leave the system
// without any credentialed admin.
func (s *Store) ReplaceUserRoles(ctx context.Context, userID uuid.UUID, roleIDs []uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		countAdmins := func() (int64, error) {
			var count int64
			err := tx.Model(&db.User{}).
				Joins("JOIN user_roles ON user_roles.user_id = users.id").
				Joins("JOIN roles ON roles.id = user_roles.role_id").
				Where("roles.name = ? AND users.password_hash != ''", "admin").
				Count(&count).Error
			return count, err
		}
		before, err := countAdmins()
		if err != nil {
			return err
		}

		if err := tx.Where("user_id = ?", userID).Delete(&db.UserRole{}).Error; err != nil {
			return err
		}
		for _, rid := range roleIDs {
			if err := tx.Create(&db.UserRole{UserID: userID, RoleID: rid}).Error; err != nil {
				return err
			}
		}

		after, err := countAdmins()
		if err != nil {
			return err
		}
		if before > 0 && after == 0 {
			return ErrLastAdmin
		}
		return nil
	})
}

// RoleWithPermissions is the projection ListRolesWithPermissions returns.
type RoleWithPermissions struct {
	Role        db.Role
	Permissions []db.Permission
	UsersCount  int64
}

// ListRolesWithPermissions returns every role joined with its permissions
// and the count of users holding it.
func (s *Store) ListRolesWithPermissions(ctx context.Context) ([]RoleWithPermissions, error) {
	var roles []db.Role
	if err := s.db.WithContext(ctx).Find(&roles).Error; err != nil {
		return nil, err
	}

	out := make([]RoleWithPermissions, 0, len(roles))
	for _, r := range roles {
		var perms []db.Permission
		if err := s.db.WithContext(ctx).
			Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
			Where("role_permissions.role_id = ?", r.ID).
			Find(&perms).Error; err != nil {
			return nil, err
		}

		var usersCount int64
		if err := s.db.WithContext(ctx).Model(&db.UserRole{}).Where("role_id = ?", r.ID).Count(&usersCount).Error; err != nil {
			return nil, err
		}

		out = append(out, RoleWithPermissions{Role: r, Permissions: perms, UsersCount: usersCount})
	}
	return out, nil
}

// ListPermissions returns every seeded and provisioned permission.
func (s *Store) ListPermissions(ctx context.Context) ([]db.Permission, error) {
	var perms []db.Permission
	err := s.db.WithContext(ctx).Order("code").Find(&perms).Error
	return perms, err
}

// ReplaceRolePermissions sets roleID's permission set to exactly
// permissionIDs.
func (s *Store) ReplaceRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", roleID).Delete(&db.RolePermission{}).Error; err != nil {
			return err
		}
		for _, pid := range permissionIDs {
			if err := tx.Create(&db.RolePermission{RoleID: roleID, PermissionID: pid}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// EffectivePermissionCodes returns the sorted, deduplicated union of
// permission codes across every role the user holds.
func (s *Store) EffectivePermissionCodes(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var codes []string
	err := s.db.WithContext(ctx).
		Model(&db.Permission{}).
		Distinct("permissions.code").
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Joins("JOIN user_roles ON user_roles.role_id = role_permissions.role_id").
		Where("user_roles.user_id = ?", userID).
		Order("permissions.code").
		Pluck("permissions.code", &codes).Error
	return codes, err
}
