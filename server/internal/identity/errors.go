// Package identity implements the Identity component: password hashing,
// opaque bearer token minting, session lifecycle, role/permission
// evaluation, and the bootstrap state machine that guarantees the system
// always has either a credentialed admin or a pending bootstrap path.
package identity

import "errors"

var (
	// ErrInvalidCredentials is the opaque failure returned for any login
	// failure — missing user, shell user, or wrong password. It never
	// distinguishes these cases to the caller, so login failures cannot
	// leak whether an email exists.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")

	// ErrAccountDisabled is returned when credentials are correct but the
	// account has been administratively disabled.
	ErrAccountDisabled = errors.New("identity: account disabled")

	// ErrTokenInvalid covers an unrecognized, expired, or already-consumed
	// setup/reset/bootstrap token.
	ErrTokenInvalid = errors.New("identity: invalid or expired token")

	// ErrTokenNotEligible is returned when a token is valid but not tagged
	// for the operation the caller is attempting (e.g. using a plain reset
	// token to claim bootstrap).
	ErrTokenNotEligible = errors.New("identity: token not eligible for this operation")

	// ErrUnauthenticated is returned by Me/AuthenticatedUser when no active session
	// matches the presented bearer.
	ErrUnauthenticated = errors.New("identity: no active session")

	// ErrUnknownRole is returned by ReplaceUserRoles when a role name does
	// not resolve to an existing role.
	ErrUnknownRole = errors.New("identity: unknown role name")

	// ErrLastAdmin is returned when an operation would leave the system
	// without any credentialed admin.
	ErrLastAdmin = errors.New("identity: cannot remove the last credentialed admin")
)
