package session

import "github.com/cockroachdb/errors"

// Session errors.
var (
	// ErrNotFound is returned when no session matches a token.
	ErrNotFound = errors.New("session: not found")

	// ErrExpired is returned when a session exists but has expired.
	ErrExpired = errors.New("session: expired")

	// ErrTypeMismatch is returned by Value when the stored value has another type.
	ErrTypeMismatch = errors.New("session: type mismatch")
)
