package models

import (
	"time"

	"github.com/dmitrijs2005/authvault/internal/cryptox"
	"github.com/dmitrijs2005/authvault/internal/timex"
)

// SecurityPolicy is the single process-wide security configuration.
// It lives inside the sealed snapshot and is mutated only through the
// admin path, which itself goes through the serialized commit path.
type SecurityPolicy struct {
	// MFARequired forces the second factor for accounts that have one
	// enrolled. Accounts without an enrollment are rejected outright
	// while this is set.
	MFARequired bool `json:"mfa_required"`

	// MaxFailedAttempts is the consecutive-failure count at which an
	// account gets locked.
	MaxFailedAttempts int `json:"max_failed_attempts"`

	// LockoutDuration is how long a locked account stays locked.
	LockoutDuration timex.Duration `json:"lockout_duration"`

	// KDFIterations is the PBKDF2 round count applied to newly created
	// or changed passwords. Existing verifiers keep the count they were
	// derived with.
	KDFIterations int `json:"kdf_iterations"`

	// FactorThreshold is the minimum provider confidence score for a
	// factor match to be accepted.
	FactorThreshold float64 `json:"factor_threshold"`

	// MinPasswordLength is the registration/change-password minimum.
	MinPasswordLength int `json:"min_password_length"`
}

// DefaultPolicy returns the policy applied on first run.
func DefaultPolicy() SecurityPolicy {
	return SecurityPolicy{
		MFARequired:       true,
		MaxFailedAttempts: 3,
		LockoutDuration:   timex.Duration{Duration: 15 * time.Minute},
		KDFIterations:     cryptox.DefaultIterations,
		FactorThreshold:   0.7,
		MinPasswordLength: 6,
	}
}

// Validate checks the policy for values the engine cannot operate with.
func (p SecurityPolicy) Validate() error {
	if p.MaxFailedAttempts < 1 {
		return errPolicyAttempts
	}
	if p.LockoutDuration.Duration <= 0 {
		return errPolicyLockout
	}
	if p.KDFIterations < 1 {
		return errPolicyIterations
	}
	if p.FactorThreshold < 0 || p.FactorThreshold > 1 {
		return errPolicyThreshold
	}
	if p.MinPasswordLength < 1 {
		return errPolicyMinLength
	}
	return nil
}
