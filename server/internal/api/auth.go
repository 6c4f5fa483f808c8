package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/db"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/identity"
)

// AuthHandler serves bootstrap, login, me, logout, and set-password.
type AuthHandler struct {
	identity *identity.Service
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(identitySvc *identity.Service) *AuthHandler {
	return &AuthHandler{identity: identitySvc}
}

// userSnapshot is the public JSON shape of a User, never including
// PasswordHash or other internal bookkeeping.
type userSnapshot struct {
	ID              string  `json:"id"`
	Email           string  `json:"email"`
	DisplayName     string  `json:"displayName,omitempty"`
	EmailVerifiedAt *string `json:"emailVerifiedAt,omitempty"`
	IsDisabled      bool    `json:"isDisabled"`
	CreatedAt       string  `json:"createdAt"`
}

func newUserSnapshot(u db.User) userSnapshot {
	s := userSnapshot{
		ID:          u.ID.String(),
		Email:       u.Email,
		DisplayName: u.DisplayName,
		IsDisabled:  u.IsDisabled,
		CreatedAt:   u.CreatedAt.UTC().Format(time.RFC3339),
	}
	if u.EmailVerifiedAt != nil {
		t := u.EmailVerifiedAt.UTC().Format(time.RFC3339)
		s.EmailVerifiedAt = &t
	}
	return s
}

// BootstrapStatus handles GET /auth/bootstrap/status.
func (h *AuthHandler) BootstrapStatus(w http.ResponseWriter, r *http.Request) {
	needs, err := h.identity.BootstrapStatus(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	Ok(w, map[string]any{"needsBootstrap": needs})
}

// BootstrapClaim handles POST /auth/bootstrap/claim.
func (h *AuthHandler) BootstrapClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" || req.Email == "" || req.Password == "" {
		ErrBadRequest(w, "token, email, and password are required")
		return
	}

	if err := h.identity.ClaimBootstrap(r.Context(), req.Token, req.Email, req.Password, req.DisplayName); err != nil {
		WriteError(w, err)
		return
	}
	Ok(w, map[string]any{"ok": true})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		ErrBadRequest(w, "email and password are required")
		return
	}

	result, err := h.identity.Login(r.Context(), req.Email, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		WriteError(w, err)
		return
	}

	Ok(w, map[string]any{
		"token":     result.BearerPlaintext,
		"expiresAt": result.ExpiresAt.UTC().Format(time.RFC3339),
		"user":      newUserSnapshot(result.User),
	})
}

// Me handles GET /auth/me. Unlike the Authenticate middleware's session
// lookup (used by every other authenticated route), this calls identity.Me
// directly so that checking your own identity is what advances the
// session's LastSeenAt.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	bearer := bearerFromRequest(r)
	if bearer == "" {
		ErrUnauthorized(w)
		return
	}

	result, err := h.identity.Me(r.Context(), bearer)
	if err != nil {
		WriteError(w, err)
		return
	}

	snap := newUserSnapshot(result.User)
	Ok(w, map[string]any{
		"id":              snap.ID,
		"email":           snap.Email,
		"displayName":     snap.DisplayName,
		"emailVerifiedAt": snap.EmailVerifiedAt,
		"isDisabled":      snap.IsDisabled,
		"createdAt":       snap.CreatedAt,
		"permissions":     result.Permissions,
	})
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.identity.Logout(r.Context(), bearerFromRequest(r)); err != nil {
		WriteError(w, err)
		return
	}
	Ok(w, map[string]any{"ok": true})
}

// SetPassword handles POST /auth/set-password.
func (h *AuthHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" || req.Password == "" {
		ErrBadRequest(w, "token and password are required")
		return
	}

	if err := h.identity.SetPassword(r.Context(), req.Token, req.Password); err != nil {
		WriteError(w, err)
		return
	}
	Ok(w, map[string]any{"ok": true})
}

// bearerFromRequest extracts the token from an "Authorization: Bearer <token>"
// header, returning "" if the header is absent or malformed.
func bearerFromRequest(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return header[len(prefix):]
}

// clientIP returns the request's remote address, stripped of its port.
func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	for i := len(host) - 1; i >= 0; i-- {
		if host[i] == ':' {
			return host[:i]
		}
	}
	return host
}
