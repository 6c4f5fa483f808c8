package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/identity"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/repositories"
)

func sessionContext(permissions []string) context.Context {
	sess := &repositories.SessionWithUser{Permissions: permissions}
	return context.WithValue(context.Background(), contextKeySession, sess)
}

func passthrough() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
}

func TestRequirePermissionAllows(t *testing.T) {
	handler := RequirePermission("nodes:read")(passthrough())
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(sessionContext([]string{"nodes:read"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Errorf("RequirePermission() blocked a held permission: status = %d", rec.Code)
	}
}

func TestRequirePermissionDenies(t *testing.T) {
	handler := RequirePermission("nodes:read")(passthrough())
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(sessionContext([]string{"users:read"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("RequirePermission() status = %d, want 403 for a missing permission", rec.Code)
	}
}

func TestRequirePermissionUnauthenticated(t *testing.T) {
	handler := RequirePermission("nodes:read")(passthrough())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("RequirePermission() status = %d, want 401 with no session in context", rec.Code)
	}
}

func TestRequireNodePermissionBroadCode(t *testing.T) {
	handler := RequireNodePermission("nodes:read", func(r *http.Request) (string, bool) {
		return identity.NodeReadCode(uuid.New()), true
	})(passthrough())
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(sessionContext([]string{"nodes:read"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Errorf("RequireNodePermission() blocked the broad code: status = %d", rec.Code)
	}
}

func TestRequireNodePermissionSpecificCode(t *testing.T) {
	id := uuid.New()
	handler := RequireNodePermission("nodes:read", func(r *http.Request) (string, bool) {
		return identity.NodeReadCode(id), true
	})(passthrough())
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(sessionContext([]string{identity.NodeReadCode(id)}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Errorf("RequireNodePermission() blocked the matching per-node code: status = %d", rec.Code)
	}
}

func TestRequireNodePermissionDenied(t *testing.T) {
	handler := RequireNodePermission("nodes:read", func(r *http.Request) (string, bool) {
		return identity.NodeReadCode(uuid.New()), true
	})(passthrough())
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(sessionContext([]string{"something:else"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("RequireNodePermission() status = %d, want 403", rec.Code)
	}
}

func TestRequireNodePermissionInvalidNodeID(t *testing.T) {
	handler := RequireNodePermission("nodes:read", func(r *http.Request) (string, bool) {
		return "", false
	})(passthrough())
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(sessionContext([]string{"nodes:read"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("RequireNodePermission() status = %d, want 400 for an unresolvable node id", rec.Code)
	}
}

func TestRequireAnyNodePermissionPrefixMatch(t *testing.T) {
	id := uuid.New()
	handler := RequireAnyNodePermission("nodes:read", "node:read:")(passthrough())
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(sessionContext([]string{identity.NodeReadCode(id)}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Errorf("RequireAnyNodePermission() blocked a prefix match: status = %d", rec.Code)
	}
}

func TestRequireAnyNodePermissionDenied(t *testing.T) {
	handler := RequireAnyNodePermission("nodes:read", "node:read:")(passthrough())
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(sessionContext([]string{"users:read"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("RequireAnyNodePermission() status = %d, want 403", rec.Code)
	}
}
