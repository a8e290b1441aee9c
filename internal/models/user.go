// Package models defines the persisted data model: credential records,
// the security policy, and the versioned snapshot that gets sealed into
// the encrypted store blob.
package models

import "time"

// User is a single credential record.
//
// The raw password is never stored: Verifier holds the PBKDF2-derived
// value, and Salt/Iterations hold the parameters it was derived with.
// Each record carries its own iteration count so a later policy change
// never invalidates existing verifiers.
type User struct {
	ID         string `json:"id"`
	UserName   string `json:"username"`
	Salt       []byte `json:"salt"`
	Verifier   []byte `json:"verifier"`
	Iterations int    `json:"iterations"`

	// Second-factor enrollment. TemplateRef is an opaque reference
	// produced by the external factor provider; the core never
	// interprets it.
	FactorEnrolled    bool   `json:"factor_enrolled"`
	FactorTemplateRef string `json:"factor_template_ref,omitempty"`

	// Lockout accounting.
	FailedAttempts int        `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`

	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"created_at"`
}

// IsLocked reports whether the account is locked out at the given moment.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// Clone returns a deep copy of the record.
func (u *User) Clone() *User {
	c := *u
	c.Salt = append([]byte(nil), u.Salt...)
	c.Verifier = append([]byte(nil), u.Verifier...)
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		c.LockedUntil = &t
	}
	return &c
}
