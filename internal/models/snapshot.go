package models

import (
	"errors"
	"fmt"
)

// SchemaVersion is the current snapshot schema version.
//
// Version history:
//
//	1 — users + policy, no lockout accounting
//	2 — adds failed_attempts / locked_until / disabled per user and
//	    max_failed_attempts / lockout_duration / min_password_length
//	    to the policy
const SchemaVersion = 2

var (
	errPolicyAttempts   = errors.New("max_failed_attempts must be at least 1")
	errPolicyLockout    = errors.New("lockout_duration must be positive")
	errPolicyIterations = errors.New("kdf_iterations must be at least 1")
	errPolicyThreshold  = errors.New("factor_threshold must be in [0,1]")
	errPolicyMinLength  = errors.New("min_password_length must be at least 1")
)

// Snapshot is the full logical state sealed into the store blob: every
// credential record plus the security policy, as one atomic unit.
type Snapshot struct {
	Version int            `json:"version"`
	Users   []*User        `json:"users"`
	Policy  SecurityPolicy `json:"policy"`
}

// NewSnapshot returns the empty state created on first run.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Version: SchemaVersion,
		Users:   []*User{},
		Policy:  DefaultPolicy(),
	}
}

// Migrate upgrades a snapshot decoded from an older schema version to
// the current one, filling fields the old version did not carry.
// It fails on versions from the future.
func (s *Snapshot) Migrate() error {
	if s.Version > SchemaVersion {
		return fmt.Errorf("snapshot version %d is newer than supported %d", s.Version, SchemaVersion)
	}

	if s.Version < 2 {
		def := DefaultPolicy()
		if s.Policy.MaxFailedAttempts == 0 {
			s.Policy.MaxFailedAttempts = def.MaxFailedAttempts
		}
		if s.Policy.LockoutDuration.Duration == 0 {
			s.Policy.LockoutDuration = def.LockoutDuration
		}
		if s.Policy.MinPasswordLength == 0 {
			s.Policy.MinPasswordLength = def.MinPasswordLength
		}
	}

	s.Version = SchemaVersion
	return nil
}

// FindUser returns the record with the given username (case-sensitive),
// or nil if absent.
func (s *Snapshot) FindUser(username string) *User {
	for _, u := range s.Users {
		if u.UserName == username {
			return u
		}
	}
	return nil
}

// AddUser appends a record. The caller is responsible for uniqueness.
func (s *Snapshot) AddUser(u *User) {
	s.Users = append(s.Users, u)
}

// RemoveUser deletes the record with the given username and reports
// whether it was present.
func (s *Snapshot) RemoveUser(username string) bool {
	for i, u := range s.Users {
		if u.UserName == username {
			s.Users = append(s.Users[:i], s.Users[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy. The engine works on a clone and hands it
// back to the store to persist, so a failed commit never corrupts the
// last loaded state.
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{Version: s.Version, Policy: s.Policy, Users: make([]*User, 0, len(s.Users))}
	for _, u := range s.Users {
		c.Users = append(c.Users, u.Clone())
	}
	return c
}
