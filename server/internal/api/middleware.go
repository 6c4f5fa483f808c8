package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/identity"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/repositories"
)

// contextKey is an unexported type for context keys defined in this package.
// Using a custom type prevents collisions with keys defined in other packages.
type contextKey int

const (
	// contextKeySession is the context key under which the authenticated
	// session+user+permissions are stored after bearer validation.
	contextKeySession contextKey = iota
)

// Authenticate is a middleware that validates the Bearer token present in the
// Authorization header against the session store. On success it stores the
// resolved session in the request context so downstream handlers can
// retrieve it via sessionFromCtx. On failure it writes a 401 and stops the
// chain.
//
// Token format: "Authorization: Bearer <token>"
func Authenticate(identitySvc *identity.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				ErrUnauthorized(w)
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				ErrUnauthorized(w)
				return
			}

			sess, err := identitySvc.AuthenticatedUser(r.Context(), parts[1])
			if err != nil {
				ErrUnauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), contextKeySession, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission returns a middleware that allows the request to proceed
// only if the authenticated user's effective permission codes contain at
// least one of required (OR semantics). It must run after Authenticate.
func RequirePermission(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := sessionFromCtx(r.Context())
			if sess == nil {
				// Should never happen if Authenticate runs first.
				ErrUnauthorized(w)
				return
			}
			if !identity.HasPermission(sess.Permissions, required...) {
				ErrForbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireNodePermission allows the request through if the session holds
// broad OR the dynamic per-node code codeFor resolves for this request
// (typically from the {nodeId} path param) — the "broad static code, or the
// specific per-node code" OR that every node read/write route uses.
func RequireNodePermission(broad string, codeFor func(r *http.Request) (string, bool)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := sessionFromCtx(r.Context())
			if sess == nil {
				ErrUnauthorized(w)
				return
			}
			code, ok := codeFor(r)
			if !ok {
				ErrBadRequest(w, "invalid node id")
				return
			}
			if !identity.HasPermission(sess.Permissions, broad, code) {
				ErrForbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyNodePermission allows the request through if the session holds
// broad OR any dynamic code starting with prefix — the gate for routes that
// return results across every node (the handler itself filters each row to
// what the caller can actually see).
func RequireAnyNodePermission(broad, prefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := sessionFromCtx(r.Context())
			if sess == nil {
				ErrUnauthorized(w)
				return
			}
			if !identity.HasPermission(sess.Permissions, broad) && !identity.HasAnyWithPrefix(sess.Permissions, prefix) {
				ErrForbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger returns a Chi-compatible middleware that logs each request
// using the provided zap logger. It logs method, path, status, and latency.
// Chi's middleware.RequestID is expected to run before this middleware so
// that the request ID is available in the context.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// sessionFromCtx retrieves the session stored by the Authenticate
// middleware. Returns nil if no session is present (i.e. the request is
// unauthenticated). Handler functions use this to access the current user
// and their effective permission codes.
func sessionFromCtx(ctx context.Context) *repositories.SessionWithUser {
	sess, _ := ctx.Value(contextKeySession).(*repositories.SessionWithUser)
	return sess
}
