package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/identity"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/liveroster"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/nodeauth"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/repositories"
)

// RouterConfig holds all dependencies needed to build the HTTP router. It is
// populated in main.go after every component is constructed and passed to
// NewRouter as a single struct to keep the constructor signature manageable
// as the number of dependencies grows.
type RouterConfig struct {
	Identity *identity.Service
	NodeAuth *nodeauth.Service
	Store    *repositories.Store
	Roster   *liveroster.Hub
	Logger   *zap.Logger
}

// NewRouter builds and returns the fully configured Chi router. Everything
// is served from the root — there is no versioned API prefix, matching the
// external interface's literal paths.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	authHandler := NewAuthHandler(cfg.Identity)
	nodesHandler := NewNodesHandler(cfg.Store, cfg.NodeAuth)
	usersHandler := NewUsersHandler(cfg.Identity, cfg.Store)
	healthHandler := NewHealthHandler(cfg.Store)

	// --- Public routes (no bearer required) ---
	r.Group(func(r chi.Router) {
		r.Get("/health", healthHandler.Health)
		r.Get("/db/health", healthHandler.DBHealth)

		r.Get("/auth/bootstrap/status", authHandler.BootstrapStatus)
		r.Post("/auth/bootstrap/claim", authHandler.BootstrapClaim)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/set-password", authHandler.SetPassword)

		// Used by agents before they hold a session bearer.
		r.Post("/nodes/auth/exchange", nodesHandler.ExchangeAuth)
	})

	// --- Bearer-authenticated routes ---
	r.Group(func(r chi.Router) {
		r.Use(Authenticate(cfg.Identity))

		r.Get("/auth/me", authHandler.Me)
		r.Post("/auth/logout", authHandler.Logout)

		r.Get("/metrics", promhttp.Handler().ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(RequireAnyNodePermission("nodes:read", "node:read:"))
			r.Get("/nodes", nodesHandler.List)
		})
		r.Group(func(r chi.Router) {
			r.Use(RequireNodePermission("nodes:read", NodeIDReadPermissionCode))
			r.Get("/nodes/{nodeId}/metrics", nodesHandler.Metrics)
		})
		r.Group(func(r chi.Router) {
			r.Use(RequirePermission("nodes:create"))
			r.Post("/nodes/create", nodesHandler.Create)
		})
		r.Group(func(r chi.Router) {
			r.Use(RequireNodePermission("nodes:delete", NodeIDWritePermissionCode))
			r.Delete("/nodes/{nodeId}", nodesHandler.Delete)
		})
		r.Group(func(r chi.Router) {
			r.Use(RequireNodePermission("nodes:delete", NodeIDWritePermissionCode))
			r.Patch("/nodes/{nodeId}", nodesHandler.Rename)
		})

		r.Get("/ws/nodes", cfg.Roster.ServeHTTP)

		// --- Admin-only user/role/permission management ---
		r.Group(func(r chi.Router) {
			r.Use(RequirePermission("users:create"))
			r.Post("/auth/users", usersHandler.Create)
			r.Post("/auth/users/{userId}/roles", usersHandler.ReplaceRoles)
			r.Post("/auth/roles", usersHandler.CreateRole)
			r.Post("/auth/roles/{roleName}/permissions", usersHandler.ReplaceRolePermissions)
		})
		r.Group(func(r chi.Router) {
			r.Use(RequirePermission("users:read"))
			r.Get("/auth/users", usersHandler.List)
			r.Get("/auth/roles", usersHandler.ListRoles)
			r.Get("/auth/permissions", usersHandler.ListPermissions)
		})
	})

	return r
}
