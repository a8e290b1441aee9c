package engine

import "time"

// Status is the externally visible result class of a login step.
type Status string

const (
	// StatusAuthenticated is terminal: both factors (as required by
	// policy) passed and a session token was minted.
	StatusAuthenticated Status = "authenticated"

	// StatusNeedsFactor means the sequence is waiting for the next
	// credential: the password right after BeginLogin, or the second
	// factor sample once the password step passed.
	StatusNeedsFactor Status = "needs_factor"

	// StatusRejected is terminal for this challenge; a new login
	// sequence may be started from scratch.
	StatusRejected Status = "rejected"

	// StatusLocked is terminal: the account is locked out until
	// RetryAfter has elapsed.
	StatusLocked Status = "locked"
)

// RejectReason qualifies StatusRejected for auditing and user messages.
// Wrong username and wrong password deliberately share one reason.
type RejectReason string

const (
	ReasonInvalidCredentials  RejectReason = "invalid_credentials"
	ReasonFactorMismatch      RejectReason = "factor_mismatch"
	ReasonFactorNotEnrolled   RejectReason = "factor_not_enrolled"
	ReasonProviderUnavailable RejectReason = "provider_unavailable"
)

// LoginOutcome is what every login step returns to the caller.
//
// Exactly the fields implied by Status are set: SessionToken for
// authenticated, ChallengeID for needs_factor, Reason for rejected,
// RetryAfter for locked.
type LoginOutcome struct {
	Status       Status
	SessionToken string
	ChallengeID  string
	Reason       RejectReason
	RetryAfter   time.Duration
}
