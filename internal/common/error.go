// Package common defines shared constants and sentinel errors used across
// flagkeeper components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// ErrInvalidData signals required input that is missing or malformed, and
	// a note lookup that found nothing. Matched by kind, never by message.
	ErrInvalidData = errors.New("invalid data")

	// ErrNoPrivileges signals a caller without moderation privilege, or a
	// caller acting on a note they did not author.
	ErrNoPrivileges = errors.New("no privileges")

	// ErrAlreadyFlagged is returned by flag validation when the reporter
	// already has a flag on the same target.
	ErrAlreadyFlagged = errors.New("already flagged")

	// Auth errors (invalid, malformed or expired token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
