// Package admin is the operator surface: account listing and removal,
// factor resets, policy changes, and access to the audit trail. It sits
// behind its own credential, kept outside the sealed store so an
// operator can still get in when user accounts are in a bad state.
package admin

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/authvault/internal/audit"
	"github.com/dmitrijs2005/authvault/internal/common"
	"github.com/dmitrijs2005/authvault/internal/cryptox"
	"github.com/dmitrijs2005/authvault/internal/logging"
	"github.com/dmitrijs2005/authvault/internal/models"
	"github.com/dmitrijs2005/authvault/internal/store"
)

// UserInfo is the redacted account view returned to operators. Salts
// and verifiers never leave the store.
type UserInfo struct {
	UserName       string
	FactorEnrolled bool
	FailedAttempts int
	LockedUntil    *time.Time
	Disabled       bool
	CreatedAt      time.Time
}

// Stats summarizes the account population.
type Stats struct {
	TotalUsers    int
	EnrolledUsers int
	LockedUsers   int
	DisabledUsers int
}

// Service exposes the admin operations. All mutations run through the
// store's serialized commit path.
type Service struct {
	store    *store.Store
	creds    *Credentials
	recorder *audit.Recorder
	logger   logging.Logger
}

func NewService(st *store.Store, creds *Credentials, recorder *audit.Recorder, logger logging.Logger) *Service {
	return &Service{
		store:    st,
		creds:    creds,
		recorder: recorder,
		logger:   logger.With("module", "admin"),
	}
}

// Login verifies the admin password against the credential file.
func (s *Service) Login(ctx context.Context, password []byte) error {
	candidate := cryptox.DeriveVerifier(password, s.creds.Salt, s.creds.Iterations)
	if !cryptox.VerifierMatches(s.creds.Verifier, candidate) {
		s.logger.Warn(ctx, "admin login rejected")
		return common.ErrUnauthorized
	}
	return nil
}

// ListUsers returns a redacted view of every account.
func (s *Service) ListUsers(ctx context.Context) ([]UserInfo, error) {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]UserInfo, 0, len(snap.Users))
	for _, u := range snap.Users {
		infos = append(infos, UserInfo{
			UserName:       u.UserName,
			FactorEnrolled: u.FactorEnrolled,
			FailedAttempts: u.FailedAttempts,
			LockedUntil:    u.LockedUntil,
			Disabled:       u.Disabled,
			CreatedAt:      u.CreatedAt,
		})
	}
	return infos, nil
}

// DeleteUser removes an account permanently.
func (s *Service) DeleteUser(ctx context.Context, userName string) error {
	err := s.store.Update(ctx, func(snap *models.Snapshot) error {
		if !snap.RemoveUser(userName) {
			return common.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.recorder.Record(ctx, userName, audit.EventUserDeleted, "")
	return nil
}

// ResetFactor clears an account's factor enrollment. The next login
// under a forced-MFA policy will be rejected until re-enrollment.
func (s *Service) ResetFactor(ctx context.Context, userName string) error {
	err := s.store.Update(ctx, func(snap *models.Snapshot) error {
		u := snap.FindUser(userName)
		if u == nil {
			return common.ErrNotFound
		}
		u.FactorEnrolled = false
		u.FactorTemplateRef = ""
		return nil
	})
	if err != nil {
		return err
	}

	s.recorder.Record(ctx, userName, audit.EventFactorReset, "")
	return nil
}

// Unlock clears an account's lockout and failed-attempt counter.
func (s *Service) Unlock(ctx context.Context, userName string) error {
	return s.store.Update(ctx, func(snap *models.Snapshot) error {
		u := snap.FindUser(userName)
		if u == nil {
			return common.ErrNotFound
		}
		u.LockedUntil = nil
		u.FailedAttempts = 0
		return nil
	})
}

// SetDisabled flips an account's disabled flag. Disabled accounts fail
// every login with the generic invalid-credentials outcome.
func (s *Service) SetDisabled(ctx context.Context, userName string, disabled bool) error {
	return s.store.Update(ctx, func(snap *models.Snapshot) error {
		u := snap.FindUser(userName)
		if u == nil {
			return common.ErrNotFound
		}
		u.Disabled = disabled
		return nil
	})
}

// Stats counts accounts by state.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{TotalUsers: len(snap.Users)}
	now := time.Now()
	for _, u := range snap.Users {
		if u.FactorEnrolled {
			st.EnrolledUsers++
		}
		if u.IsLocked(now) {
			st.LockedUsers++
		}
		if u.Disabled {
			st.DisabledUsers++
		}
	}
	return st, nil
}

// RecentEvents returns the newest n audit events.
func (s *Service) RecentEvents(n int) []audit.Event {
	return s.recorder.Recent(n)
}

// Policy returns the current security policy.
func (s *Service) Policy(ctx context.Context) (models.SecurityPolicy, error) {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return models.SecurityPolicy{}, err
	}
	return snap.Policy, nil
}

// SetPolicy validates and installs a new security policy.
func (s *Service) SetPolicy(ctx context.Context, p models.SecurityPolicy) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrPolicyViolation, err)
	}

	err := s.store.Update(ctx, func(snap *models.Snapshot) error {
		snap.Policy = p
		return nil
	})
	if err != nil {
		return err
	}

	s.recorder.Record(ctx, "", audit.EventPolicyChanged, "")
	return nil
}

// encodeCredentials renders the admin credential line:
// hex(salt):hex(verifier):iterations.
func encodeCredentials(c *Credentials) []byte {
	line := hex.EncodeToString(c.Salt) + ":" + hex.EncodeToString(c.Verifier) + ":" + strconv.Itoa(c.Iterations)
	return []byte(line + "\n")
}

func decodeCredentials(data []byte) (*Credentials, error) {
	parts := strings.Split(strings.TrimSpace(string(data)), ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: malformed admin credential file", common.ErrInternal)
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: bad salt encoding", common.ErrInternal)
	}
	verifier, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: bad verifier encoding", common.ErrInternal)
	}
	iterations, err := strconv.Atoi(parts[2])
	if err != nil || iterations < 1 {
		return nil, fmt.Errorf("%w: bad iteration count", common.ErrInternal)
	}

	return &Credentials{Salt: salt, Verifier: verifier, Iterations: iterations}, nil
}
