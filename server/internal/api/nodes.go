package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/db"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/identity"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/nodeauth"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/repositories"
)

const defaultMetricsLimit = 120

// NodesHandler serves node registration, listing, metrics history, and the
// unauthenticated broker-credential exchange agents use at startup.
type NodesHandler struct {
	store    *repositories.Store
	nodeAuth *nodeauth.Service
}

// NewNodesHandler constructs a NodesHandler.
func NewNodesHandler(store *repositories.Store, nodeAuthSvc *nodeauth.Service) *NodesHandler {
	return &NodesHandler{store: store, nodeAuth: nodeAuthSvc}
}

// List handles GET /nodes.
func (h *NodesHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListNodesWithStats(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	sess := sessionFromCtx(r.Context())
	canReadAll := identity.HasPermission(sess.Permissions, "nodes:read")

	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		if !canReadAll && !identity.HasPermission(sess.Permissions, identity.NodeReadCode(row.Node.ID)) {
			continue
		}

		entry := map[string]any{
			"id":           row.Node.ID.String(),
			"name":         row.Node.Name,
			"lastSeenAt":   row.Node.LastSeenAt.UTC().Format(time.RFC3339),
			"publishCount": row.PublishCount,
			"createdAt":    row.Node.CreatedAt.UTC().Format(time.RFC3339),
		}
		if row.LatestMetric != nil {
			entry["latestMetric"] = metricSnapshot(*row.LatestMetric)
		}
		if row.SystemInfo != nil {
			entry["systemInfo"] = map[string]any{
				"hash":       row.SystemInfo.Hash,
				"reportedAt": row.SystemInfo.ReportedTS.UTC().Format(time.RFC3339),
				"info":       json.RawMessage(row.SystemInfo.Payload),
			}
		}
		out = append(out, entry)
	}

	Ok(w, out)
}

// Metrics handles GET /nodes/:nodeId/metrics?limit=.
func (h *NodesHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	nodeID, err := uuid.Parse(chi.URLParam(r, "nodeId"))
	if err != nil {
		ErrBadRequest(w, "invalid node id")
		return
	}

	limit := defaultMetricsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			ErrBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	rows, err := h.store.ListRecentMetrics(r.Context(), nodeID, limit)
	if err != nil {
		WriteError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(rows))
	for _, m := range rows {
		out = append(out, metricSnapshot(m))
	}
	Ok(w, map[string]any{"nodeId": nodeID.String(), "metrics": out})
}

func metricSnapshot(m db.Metric) map[string]any {
	return map[string]any{
		"ts":        m.TS.UTC().Format(time.RFC3339),
		"cpu":       m.CPU,
		"memUsed":   m.MemUsed,
		"memTotal":  m.MemTotal,
		"diskUsed":  m.DiskUsed,
		"diskTotal": m.DiskTotal,
		"netRx":     m.NetRx,
		"netTx":     m.NetTx,
	}
}

// Create handles POST /nodes/create.
func (h *NodesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		ErrBadRequest(w, "name is required")
		return
	}

	var actorID *uuid.UUID
	if sess := sessionFromCtx(r.Context()); sess != nil {
		actorID = &sess.User.ID
	}

	result, err := h.nodeAuth.CreateNode(r.Context(), req.Name, actorID, clientIP(r))
	if err != nil {
		WriteError(w, err)
		return
	}

	Created(w, map[string]any{
		"id":        result.Node.ID.String(),
		"name":      result.Node.Name,
		"createdAt": result.Node.CreatedAt.UTC().Format(time.RFC3339),
		"token":     result.TokenPlaintext,
		"envFile":   nodeEnvFile(result.Node.ID.String(), result.TokenPlaintext),
	})
}

// nodeEnvFile renders the .env content an operator drops into the agent's
// working directory to point it at this node's identity.
func nodeEnvFile(nodeID, token string) string {
	return "STATIX_NODE_ID=" + nodeID + "\nSTATIX_NODE_TOKEN=" + token + "\n"
}

// Delete handles DELETE /nodes/:nodeId.
func (h *NodesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	nodeID, err := uuid.Parse(chi.URLParam(r, "nodeId"))
	if err != nil {
		ErrBadRequest(w, "invalid node id")
		return
	}
	var actorID *uuid.UUID
	if sess := sessionFromCtx(r.Context()); sess != nil {
		actorID = &sess.User.ID
	}

	if err := h.nodeAuth.DeleteNode(r.Context(), nodeID, actorID, clientIP(r)); err != nil {
		WriteError(w, err)
		return
	}
	NoContent(w)
}

// Rename handles PATCH /nodes/:nodeId.
func (h *NodesHandler) Rename(w http.ResponseWriter, r *http.Request) {
	nodeID, err := uuid.Parse(chi.URLParam(r, "nodeId"))
	if err != nil {
		ErrBadRequest(w, "invalid node id")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		ErrBadRequest(w, "name is required")
		return
	}

	node, err := h.store.UpdateNodeName(r.Context(), nodeID, req.Name)
	if err != nil {
		WriteError(w, err)
		return
	}

	Ok(w, map[string]any{
		"id":         node.ID.String(),
		"name":       node.Name,
		"lastSeenAt": node.LastSeenAt.UTC().Format(time.RFC3339),
	})
}

// ExchangeAuth handles POST /nodes/auth/exchange — unauthenticated, used by
// agents to trade their long-lived bearer for current broker coordinates.
func (h *NodesHandler) ExchangeAuth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NodeID    string `json:"nodeId"`
		NodeToken string `json:"nodeToken"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.NodeID == "" || req.NodeToken == "" {
		ErrBadRequest(w, "nodeId and nodeToken are required")
		return
	}

	creds, err := h.nodeAuth.ExchangeNodeToken(r.Context(), req.NodeID, req.NodeToken)
	if err != nil {
		WriteError(w, err)
		return
	}
	Ok(w, map[string]any{"mqtt": creds})
}

// NodeIDReadPermissionCode resolves the {nodeId} path param to its dynamic
// per-node read permission code, for use with RequireNodePermission.
func NodeIDReadPermissionCode(r *http.Request) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "nodeId"))
	if err != nil {
		return "", false
	}
	return identity.NodeReadCode(id), true
}

// NodeIDWritePermissionCode resolves the {nodeId} path param to its dynamic
// per-node write permission code, for use with RequireNodePermission.
func NodeIDWritePermissionCode(r *http.Request) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "nodeId"))
	if err != nil {
		return "", false
	}
	return identity.NodeWriteCode(id), true
}
