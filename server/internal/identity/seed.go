package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// staticPermissions are the codes seeded at every server start, alongside
// the dynamic node:read:<id>/node:write:<id> codes provisioned lazily by
// NodeAuth. Descriptions are stored for the permission-listing endpoint.
var staticPermissions = []struct {
	code        string
	description string
}{
	{"health:read", "read service health status"},
	{"nodes:read", "list and read every node"},
	{"nodes:create", "register new nodes"},
	{"nodes:delete", "remove nodes"},
	{"users:create", "create users and manage roles"},
	{"users:read", "list users, roles, and permissions"},
	{"roles:assign", "assign roles to users"},
	{"auth:me", "read the caller's own identity"},
}

// SeedPermissions ensures every static permission code exists and that the
// admin role holds all of them, plus the user role. Called once from
// Prestart on every server start — idempotent, since EnsurePermission and
// ReplaceRolePermissions are both upsert-shaped.
func (s *Service) SeedPermissions(ctx context.Context) error {
	adminRole, err := s.store.EnsureRole(ctx, "admin")
	if err != nil {
		return fmt.Errorf("identity: ensuring admin role: %w", err)
	}
	if _, err := s.store.EnsureRole(ctx, "user"); err != nil {
		return fmt.Errorf("identity: ensuring user role: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(staticPermissions))
	for _, p := range staticPermissions {
		perm, err := s.store.EnsurePermission(ctx, p.code, p.description)
		if err != nil {
			return fmt.Errorf("identity: ensuring permission %s: %w", p.code, err)
		}
		ids = append(ids, perm.ID)
	}

	if err := s.store.ReplaceRolePermissions(ctx, adminRole.ID, ids); err != nil {
		return fmt.Errorf("identity: granting static permissions to admin: %w", err)
	}
	return nil
}
