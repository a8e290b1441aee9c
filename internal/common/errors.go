// Package common defines shared constants and sentinel errors used across
// AuthVault components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrNotFound  = errors.New("not found")
	ErrIntegrity = errors.New("integrity check failed")

	// Service-level errors (generic/internal flow control).
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")

	// Authentication outcomes. These are expected, user-recoverable
	// conditions, not catastrophic failures.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLocked             = errors.New("account locked")

	// Registration / policy errors.
	ErrUsernameTaken   = errors.New("username already taken")
	ErrWeakPassword    = errors.New("password does not meet policy")
	ErrPolicyViolation = errors.New("policy violation")

	// Factor provider errors. Unavailability is distinct from a
	// non-match and must never be treated as a pass.
	ErrProviderUnavailable = errors.New("factor provider unavailable")

	// Challenge lifecycle errors.
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrInvalidState      = errors.New("operation not valid in current state")

	// Token errors.
	ErrInvalidToken = errors.New("invalid token")
)
