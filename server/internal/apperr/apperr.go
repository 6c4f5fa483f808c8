// Package apperr maps the sentinel errors returned by the identity,
// nodeauth, and repositories packages to HTTP status codes, so handlers
// never need a type switch over every package's error set. The mapping
// follows the error taxonomy: ValidationError/Conflict->400,
// AuthenticationError->401, AuthorizationError->403, NotFound->404,
// Internal->500.
package apperr

import (
	"errors"
	"net/http"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/identity"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/nodeauth"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/repositories"
)

// StatusFor maps err to the HTTP status a handler should respond with.
// Unrecognized errors map to 500 and the response never carries internal
// detail. Neither this package nor api.WriteError logs err.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, repositories.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repositories.ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, repositories.ErrLastAdmin):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, identity.ErrAccountDisabled):
		return http.StatusForbidden
	case errors.Is(err, identity.ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, identity.ErrTokenNotEligible):
		return http.StatusForbidden
	case errors.Is(err, identity.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, identity.ErrUnknownRole):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrLastAdmin):
		return http.StatusBadRequest
	case errors.Is(err, nodeauth.ErrInvalidToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the response-safe message for err. Sentinel errors carry
// messages already written for client consumption; anything unrecognized
// gets a generic message so internal detail never leaks.
func Message(err error) string {
	switch StatusFor(err) {
	case http.StatusInternalServerError:
		return "an internal error occurred"
	default:
		return err.Error()
	}
}
