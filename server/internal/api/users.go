package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/identity"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/repositories"
)

// UsersHandler serves the admin-only user/role/permission management
// surface.
type UsersHandler struct {
	identity *identity.Service
	store    *repositories.Store
}

// NewUsersHandler constructs a UsersHandler.
func NewUsersHandler(identitySvc *identity.Service, store *repositories.Store) *UsersHandler {
	return &UsersHandler{identity: identitySvc, store: store}
}

// Create handles POST /auth/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		ErrBadRequest(w, "email is required")
		return
	}

	result, err := h.identity.CreateUser(r.Context(), req.Email, req.DisplayName)
	if err != nil {
		WriteError(w, err)
		return
	}

	Created(w, map[string]any{
		"id":                  result.UserID.String(),
		"email":               result.Email,
		"setupToken":          result.SetupTokenPlaintext,
		"setupTokenExpiresAt": result.SetupTokenExpiresAt.UTC().Format(time.RFC3339),
	})
}

// List handles GET /auth/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListUsersWithRoles(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		roleNames := make([]string, 0, len(row.Roles))
		for _, rl := range row.Roles {
			roleNames = append(roleNames, rl.Name)
		}
		snap := newUserSnapshot(row.User)
		out = append(out, map[string]any{
			"id":              snap.ID,
			"email":           snap.Email,
			"displayName":     snap.DisplayName,
			"emailVerifiedAt": snap.EmailVerifiedAt,
			"isDisabled":      snap.IsDisabled,
			"createdAt":       snap.CreatedAt,
			"roles":           roleNames,
		})
	}
	Ok(w, out)
}

// ReplaceRoles handles POST /auth/users/:userId/roles.
func (h *UsersHandler) ReplaceRoles(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		ErrBadRequest(w, "invalid user id")
		return
	}

	var req struct {
		RoleNames []string `json:"roleNames"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.identity.ReplaceUserRoles(r.Context(), userID, req.RoleNames); err != nil {
		WriteError(w, err)
		return
	}

	user, err := h.store.FindUserById(r.Context(), userID)
	if err != nil {
		WriteError(w, err)
		return
	}
	Ok(w, newUserSnapshot(*user))
}

// ListRoles handles GET /auth/roles.
func (h *UsersHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListRolesWithPermissions(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		codes := make([]string, 0, len(row.Permissions))
		for _, p := range row.Permissions {
			codes = append(codes, p.Code)
		}
		out = append(out, map[string]any{
			"id":              row.Role.ID.String(),
			"name":            row.Role.Name,
			"permissionCodes": codes,
			"usersCount":      row.UsersCount,
		})
	}
	Ok(w, out)
}

// CreateRole handles POST /auth/roles.
func (h *UsersHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string   `json:"name"`
		Description     string   `json:"description"`
		PermissionCodes []string `json:"permissionCodes"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		ErrBadRequest(w, "name is required")
		return
	}

	role, err := h.store.EnsureRole(r.Context(), req.Name)
	if err != nil {
		WriteError(w, err)
		return
	}

	if len(req.PermissionCodes) > 0 {
		ids, err := h.permissionIDs(r, req.PermissionCodes)
		if err != nil {
			WriteError(w, err)
			return
		}
		if err := h.store.ReplaceRolePermissions(r.Context(), role.ID, ids); err != nil {
			WriteError(w, err)
			return
		}
	}

	Created(w, map[string]any{"id": role.ID.String(), "name": role.Name})
}

// ReplaceRolePermissions handles POST /auth/roles/:roleName/permissions.
func (h *UsersHandler) ReplaceRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleName := chi.URLParam(r, "roleName")

	var req struct {
		PermissionCodes []string `json:"permissionCodes"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	roles, err := h.store.FindRolesByNames(r.Context(), []string{roleName})
	if err != nil {
		WriteError(w, err)
		return
	}
	role := roles[0]

	ids, err := h.permissionIDs(r, req.PermissionCodes)
	if err != nil {
		WriteError(w, err)
		return
	}
	if err := h.store.ReplaceRolePermissions(r.Context(), role.ID, ids); err != nil {
		WriteError(w, err)
		return
	}

	Ok(w, map[string]any{"id": role.ID.String(), "name": role.Name, "permissionCodes": req.PermissionCodes})
}

// ListPermissions handles GET /auth/permissions.
func (h *UsersHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.store.ListPermissions(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(perms))
	for _, p := range perms {
		out = append(out, map[string]any{"code": p.Code, "description": p.Description})
	}
	Ok(w, out)
}

func (h *UsersHandler) permissionIDs(r *http.Request, codes []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(codes))
	for _, code := range codes {
		p, err := h.store.EnsurePermission(r.Context(), code, "")
		if err != nil {
			return nil, err
		}
		ids = append(ids, p.ID)
	}
	return ids, nil
}
