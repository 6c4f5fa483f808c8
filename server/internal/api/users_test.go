package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/db"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/identity"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/repositories"
)

func newTestUsersHandler(t *testing.T) *UsersHandler {
	t.Helper()
	gormDB, err := db.New(db.Config{
		Driver:   "sqlite",
		DSN:      "file:" + t.Name() + "?mode=memory&cache=shared",
		Logger:   zap.NewNop(),
		LogLevel: gormlogger.Silent,
	})
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	store := repositories.New(gormDB)
	svc := identity.New(store, zap.NewNop())
	return NewUsersHandler(svc, store)
}

func TestUsersCreateAndList(t *testing.T) {
	h := newTestUsersHandler(t)

	createReq := httptest.NewRequest(http.MethodPost, "/auth/users", strings.NewReader(`{"email":"new@example.com","displayName":"New User"}`))
	createRec := httptest.NewRecorder()
	h.Create(createRec, createReq)

	if createRec.Code != http.StatusCreated {
		t.Fatalf("Create() status = %d, want 201, body = %s", createRec.Code, createRec.Body.String())
	}
	var created map[string]any
	if err := json.Unmarshal(createRec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding create response: %v", err)
	}
	if created["setupToken"] == "" || created["setupToken"] == nil {
		t.Error("Create() did not return a setup token")
	}

	listReq := httptest.NewRequest(http.MethodGet, "/auth/users", nil)
	listRec := httptest.NewRecorder()
	h.List(listRec, listReq)

	var rows []map[string]any
	if err := json.Unmarshal(listRec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decoding list response: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("List() returned %d rows, want 1", len(rows))
	}
	if rows[0]["email"] != "new@example.com" {
		t.Errorf("List() email = %v, want new@example.com", rows[0]["email"])
	}
}

func TestUsersCreateRequiresEmail(t *testing.T) {
	h := newTestUsersHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/auth/users", strings.NewReader(`{"email":""}`))
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Create() status = %d, want 400 for an empty email", rec.Code)
	}
}

func TestRolesAndPermissionsLifecycle(t *testing.T) {
	h := newTestUsersHandler(t)

	createRoleReq := httptest.NewRequest(http.MethodPost, "/auth/roles", strings.NewReader(`{"name":"operator","permissionCodes":["nodes:read"]}`))
	createRoleRec := httptest.NewRecorder()
	h.CreateRole(createRoleRec, createRoleReq)
	if createRoleRec.Code != http.StatusCreated {
		t.Fatalf("CreateRole() status = %d, want 201, body = %s", createRoleRec.Code, createRoleRec.Body.String())
	}

	listRolesReq := httptest.NewRequest(http.MethodGet, "/auth/roles", nil)
	listRolesRec := httptest.NewRecorder()
	h.ListRoles(listRolesRec, listRolesReq)

	var roles []map[string]any
	if err := json.Unmarshal(listRolesRec.Body.Bytes(), &roles); err != nil {
		t.Fatalf("decoding roles: %v", err)
	}
	found := false
	for _, r := range roles {
		if r["name"] == "operator" {
			found = true
		}
	}
	if !found {
		t.Fatalf("ListRoles() = %+v, want an operator role", roles)
	}

	replaceReq := withChiRoleParam(httptest.NewRequest(http.MethodPost, "/auth/roles/operator/permissions", strings.NewReader(`{"permissionCodes":["nodes:read","users:read"]}`)), "operator")
	replaceRec := httptest.NewRecorder()
	h.ReplaceRolePermissions(replaceRec, replaceReq)
	if replaceRec.Code != http.StatusOK {
		t.Fatalf("ReplaceRolePermissions() status = %d, want 200, body = %s", replaceRec.Code, replaceRec.Body.String())
	}

	listPermsReq := httptest.NewRequest(http.MethodGet, "/auth/permissions", nil)
	listPermsRec := httptest.NewRecorder()
	h.ListPermissions(listPermsRec, listPermsReq)

	var perms []map[string]any
	if err := json.Unmarshal(listPermsRec.Body.Bytes(), &perms); err != nil {
		t.Fatalf("decoding permissions: %v", err)
	}
	if len(perms) < 2 {
		t.Errorf("ListPermissions() returned %d codes, want at least 2", len(perms))
	}
}

func withChiRoleParam(req *http.Request, roleName string) *http.Request {
	return withChiParam(req, "roleName", roleName)
}

func TestReplaceUserRoles(t *testing.T) {
	h := newTestUsersHandler(t)
	ctx := context.Background()

	result, err := h.identity.CreateUser(ctx, "roletest@example.com", "Role Test")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if _, err := h.store.EnsureRole(ctx, "operator"); err != nil {
		t.Fatalf("EnsureRole() error = %v", err)
	}

	req := withChiParam(httptest.NewRequest(http.MethodPost, "/auth/users/"+result.UserID.String()+"/roles", strings.NewReader(`{"roleNames":["operator"]}`)), "userId", result.UserID.String())
	rec := httptest.NewRecorder()
	h.ReplaceRoles(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ReplaceRoles() status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
}

func TestReplaceUserRolesInvalidUserID(t *testing.T) {
	h := newTestUsersHandler(t)
	req := withChiParam(httptest.NewRequest(http.MethodPost, "/auth/users/not-a-uuid/roles", strings.NewReader(`{"roleNames":[]}`)), "userId", "not-a-uuid")
	rec := httptest.NewRecorder()
	h.ReplaceRoles(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("ReplaceRoles() status = %d, want 400 for a malformed user id", rec.Code)
	}
}
