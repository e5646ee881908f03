package auth

import "errors"

var (
	// ErrInvalidCredentials is returned for both unknown-username and
	// wrong-password failures so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrConflict means the username or email is already registered.
	ErrConflict = errors.New("username or email already registered")

	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrTokenExpired     = errors.New("token expired")
	ErrClaimsMalformed  = errors.New("token claims malformed")

	// ErrUserNotFound means the token verified but its subject no longer
	// exists; deleting an account invalidates its outstanding tokens.
	ErrUserNotFound = errors.New("token subject not found")
)
