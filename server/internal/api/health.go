package api

import (
	"net/http"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/repositories"
)

// HealthHandler serves the liveness and database-connectivity probes.
type HealthHandler struct {
	store *repositories.Store
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(store *repositories.Store) *HealthHandler {
	return &HealthHandler{store: store}
}

// Health handles GET /health — always 200 once the process is serving.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	Ok(w, map[string]any{"ok": true})
}

// DBHealth handles GET /db/health — 200 if the database connection is
// reachable, 502 otherwise (the Gateway class: an upstream dependency is
// unavailable, not the server itself).
func (h *HealthHandler) DBHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		JSON(w, http.StatusBadGateway, errorBody{Error: "database unreachable"})
		return
	}
	Ok(w, map[string]any{"ok": true})
}
