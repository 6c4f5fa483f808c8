// Package api implements the HTTP REST API layer for the Statix server.
// It uses Chi as the router and exposes all resources under the root.
// Authentication is enforced via bearer-session middleware on all routes
// except bootstrap/login/set-password/node exchange/health. Fine-grained
// access (static and per-node permission codes) is applied at the route
// level via the RequirePermission/RequireNodePermission middleware.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/apperr"
)

// JSON writes a JSON-encoded response with the given status code.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Ok writes a 200 OK response with payload as the raw JSON body.
func Ok(w http.ResponseWriter, payload any) {
	JSON(w, http.StatusOK, payload)
}

// Created writes a 201 Created response with payload as the raw JSON body.
func Created(w http.ResponseWriter, payload any) {
	JSON(w, http.StatusCreated, payload)
}

// NoContent writes a 204 No Content response with no body.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// errorBody is the flat {"error": "..."} shape every error response uses.
type errorBody struct {
	Error string `json:"error"`
}

// ErrBadRequest writes a 400 Bad Request error response.
func ErrBadRequest(w http.ResponseWriter, message string) {
	JSON(w, http.StatusBadRequest, errorBody{Error: message})
}

// ErrUnauthorized writes a 401 Unauthorized error response.
func ErrUnauthorized(w http.ResponseWriter) {
	JSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
}

// ErrForbidden writes a 403 Forbidden error response.
func ErrForbidden(w http.ResponseWriter) {
	JSON(w, http.StatusForbidden, errorBody{Error: "insufficient permissions"})
}

// ErrNotFound writes a 404 Not Found error response.
func ErrNotFound(w http.ResponseWriter) {
	JSON(w, http.StatusNotFound, errorBody{Error: "resource not found"})
}

// ErrConflict writes a 400 Bad Request error response for the conflict class
// of errors this system recognizes (last-admin removal, unknown role/
// permission names) — the spec maps Conflict to 400, not 409.
func ErrConflict(w http.ResponseWriter, message string) {
	JSON(w, http.StatusBadRequest, errorBody{Error: message})
}

// ErrInternal writes a 500 Internal Server Error response. The internal
// error detail is intentionally not exposed to the client.
func ErrInternal(w http.ResponseWriter) {
	JSON(w, http.StatusInternalServerError, errorBody{Error: "an internal error occurred"})
}

// WriteError maps err via apperr and writes the corresponding status and
// {"error": "..."} body — the single place handlers route a Service-layer
// error to its HTTP response.
func WriteError(w http.ResponseWriter, err error) {
	JSON(w, apperr.StatusFor(err), errorBody{Error: apperr.Message(err)})
}

// decodeJSON decodes the request body into dst. Returns false and writes a
// 400 error response if decoding fails, so callers can early-return.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		ErrBadRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}
