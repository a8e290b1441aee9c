// Package engine implements the multi-factor authentication state machine.
//
// A login sequence is one challenge walking an explicit FSM:
//
//	Idle → AwaitingPassword → (AwaitingFactor | Authenticated | Locked | Rejected)
//	AwaitingFactor → (Authenticated | Rejected | Locked)
//
// Authenticated, Rejected, and Locked are terminal; a rejected caller
// starts over from Idle. All persistent mutations, counter increments
// included, run as read-modify-write cycles through the store's
// exclusive commit path, so concurrent sequences cannot lose updates.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/authvault/internal/audit"
	"github.com/dmitrijs2005/authvault/internal/common"
	"github.com/dmitrijs2005/authvault/internal/config"
	"github.com/dmitrijs2005/authvault/internal/cryptox"
	"github.com/dmitrijs2005/authvault/internal/factor"
	"github.com/dmitrijs2005/authvault/internal/logging"
	"github.com/dmitrijs2005/authvault/internal/models"
	"github.com/dmitrijs2005/authvault/internal/session"
	"github.com/dmitrijs2005/authvault/internal/store"
)

// errNoChange tells Store.Update that the cycle produced nothing to
// persist; it is swallowed before results reach the caller.
var errNoChange = errors.New("no change")

// Engine drives registration, the two-factor login protocol, password
// changes, and policy access.
type Engine struct {
	store    *store.Store
	provider factor.Provider
	recorder *audit.Recorder
	logger   logging.Logger

	jwtSecret     []byte
	tokenValidity time.Duration

	// decoySalt feeds the key derivation performed for usernames that
	// do not exist, so the unknown-user path costs the same as a real
	// verification.
	decoySalt []byte

	now func() time.Time

	mu         sync.Mutex
	challenges map[string]*challenge
}

func New(st *store.Store, provider factor.Provider, recorder *audit.Recorder, logger logging.Logger, cfg *config.Config) *Engine {
	return &Engine{
		store:         st,
		provider:      provider,
		recorder:      recorder,
		logger:        logger.With("module", "engine"),
		jwtSecret:     []byte(cfg.SecretKey),
		tokenValidity: cfg.SessionTokenValidityDuration,
		decoySalt:     common.GenerateRandByteArray(cryptox.SaltLength),
		now:           time.Now,
		challenges:    make(map[string]*challenge),
	}
}

// Register creates a new credential record. With enrollFactor set, the
// sample is first enrolled with the factor provider and the returned
// template reference is stored on the record.
func (e *Engine) Register(ctx context.Context, userName string, password []byte, enrollFactor bool, sample []byte) error {
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return fmt.Errorf("%w: empty username", common.ErrPolicyViolation)
	}

	// Cheap pre-checks so a doomed registration never reaches the
	// provider. Update re-checks both under the lock.
	snap, err := e.store.Load(ctx)
	if err != nil {
		return err
	}
	if len(password) < snap.Policy.MinPasswordLength {
		return common.ErrWeakPassword
	}
	if snap.FindUser(userName) != nil {
		return common.ErrUsernameTaken
	}

	templateRef := ""
	if enrollFactor {
		// Network call, deliberately outside the store lock.
		ref, err := e.provider.Enroll(ctx, userName, sample)
		if err != nil {
			return err
		}
		templateRef = ref
	}

	err = e.store.Update(ctx, func(snap *models.Snapshot) error {
		if len(password) < snap.Policy.MinPasswordLength {
			return common.ErrWeakPassword
		}
		if snap.FindUser(userName) != nil {
			return common.ErrUsernameTaken
		}

		salt := common.GenerateRandByteArray(cryptox.SaltLength)
		snap.AddUser(&models.User{
			ID:                uuid.NewString(),
			UserName:          userName,
			Salt:              salt,
			Verifier:          cryptox.DeriveVerifier(password, salt, snap.Policy.KDFIterations),
			Iterations:        snap.Policy.KDFIterations,
			FactorEnrolled:    enrollFactor,
			FactorTemplateRef: templateRef,
			CreatedAt:         e.now(),
		})
		return nil
	})
	if err != nil {
		return err
	}

	e.recorder.Record(ctx, userName, audit.EventUserRegistered, "")
	return nil
}

// EnrollFactor enrolls (or replaces) the second factor for an existing
// account and returns the provider's template reference, which clients
// may need to show (a TOTP provisioning URL, for instance).
func (e *Engine) EnrollFactor(ctx context.Context, userName string, sample []byte) (string, error) {
	ref, err := e.provider.Enroll(ctx, userName, sample)
	if err != nil {
		return "", err
	}

	err = e.store.Update(ctx, func(snap *models.Snapshot) error {
		u := snap.FindUser(userName)
		if u == nil {
			return common.ErrNotFound
		}
		u.FactorEnrolled = true
		u.FactorTemplateRef = ref
		return nil
	})
	if err != nil {
		return "", err
	}

	e.recorder.Record(ctx, userName, audit.EventFactorEnrolled, "")
	return ref, nil
}

// BeginLogin starts a login sequence. A currently locked account goes
// straight to the Locked outcome with the remaining lockout time; any
// other username, existing or not, receives a password challenge, so
// this call never reveals whether an account exists.
func (e *Engine) BeginLogin(ctx context.Context, userName string) (LoginOutcome, error) {
	snap, err := e.store.Load(ctx)
	if err != nil {
		return LoginOutcome{}, err
	}

	now := e.now()
	u := snap.FindUser(userName)
	if u != nil && u.IsLocked(now) {
		return LoginOutcome{Status: StatusLocked, RetryAfter: u.LockedUntil.Sub(now)}, nil
	}

	ch := newChallenge(userName, u == nil, snap.Policy.KDFIterations, now)
	e.mu.Lock()
	e.challenges[ch.id] = ch
	e.mu.Unlock()

	return LoginOutcome{Status: StatusNeedsFactor, ChallengeID: ch.id}, nil
}

// Login runs the begin and password steps in one call. It is the
// common entry point for clients that collect username and password
// together; the returned outcome either completes the sequence or
// carries the challenge ID for SubmitFactor.
func (e *Engine) Login(ctx context.Context, userName string, password []byte) (LoginOutcome, error) {
	out, err := e.BeginLogin(ctx, userName)
	if err != nil || out.Status != StatusNeedsFactor {
		return out, err
	}
	return e.SubmitPassword(ctx, out.ChallengeID, password)
}

// SubmitPassword verifies the password factor for an open challenge.
//
// On mismatch the failed-attempt counter is incremented and persisted;
// reaching the policy threshold locks the account. On match the counter
// resets to zero and, depending on policy and enrollment, the sequence
// either completes or moves on to the second factor.
func (e *Engine) SubmitPassword(ctx context.Context, challengeID string, password []byte) (LoginOutcome, error) {
	ch, err := e.challengeInState(challengeID, stateAwaitingPassword)
	if err != nil {
		return LoginOutcome{}, err
	}

	if ch.unknownUser {
		// Same KDF cost as a real verification.
		cryptox.DeriveVerifier(password, e.decoySalt, ch.decoyIterations)
		e.finishChallenge(ch.id)
		e.recorder.Record(ctx, ch.userName, audit.EventLoginFailUnknown, "")
		return LoginOutcome{Status: StatusRejected, Reason: ReasonInvalidCredentials}, nil
	}

	var (
		outcome    LoginOutcome
		lockedNow  bool
		passwordOK bool
	)

	err = e.store.Update(ctx, func(snap *models.Snapshot) error {
		now := e.now()
		u := snap.FindUser(ch.userName)
		if u == nil || u.Disabled {
			outcome = LoginOutcome{Status: StatusRejected, Reason: ReasonInvalidCredentials}
			return errNoChange
		}
		if u.IsLocked(now) {
			outcome = LoginOutcome{Status: StatusLocked, RetryAfter: u.LockedUntil.Sub(now)}
			return errNoChange
		}

		candidate := cryptox.DeriveVerifier(password, u.Salt, u.Iterations)
		if !cryptox.VerifierMatches(u.Verifier, candidate) {
			u.FailedAttempts++
			if u.FailedAttempts >= snap.Policy.MaxFailedAttempts {
				until := now.Add(snap.Policy.LockoutDuration.Duration)
				u.LockedUntil = &until
				u.FailedAttempts = 0
				lockedNow = true
				outcome = LoginOutcome{Status: StatusLocked, RetryAfter: snap.Policy.LockoutDuration.Duration}
			} else {
				outcome = LoginOutcome{Status: StatusRejected, Reason: ReasonInvalidCredentials}
			}
			return nil
		}

		passwordOK = true
		changed := u.FailedAttempts != 0 || u.LockedUntil != nil
		u.FailedAttempts = 0
		u.LockedUntil = nil

		switch {
		case snap.Policy.MFARequired && u.FactorEnrolled:
			outcome = LoginOutcome{Status: StatusNeedsFactor, ChallengeID: ch.id}
		case snap.Policy.MFARequired && !u.FactorEnrolled:
			// Policy decision: forced MFA with no enrollment is a hard
			// reject, matching the original system's behavior.
			outcome = LoginOutcome{Status: StatusRejected, Reason: ReasonFactorNotEnrolled}
		default:
			outcome = LoginOutcome{Status: StatusAuthenticated}
		}

		if !changed {
			return errNoChange
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		return LoginOutcome{}, err
	}

	return e.settlePasswordStep(ctx, ch, outcome, passwordOK, lockedNow)
}

func (e *Engine) settlePasswordStep(ctx context.Context, ch *challenge, outcome LoginOutcome, passwordOK, lockedNow bool) (LoginOutcome, error) {
	switch {
	case passwordOK && outcome.Status == StatusNeedsFactor:
		e.mu.Lock()
		ch.state = stateAwaitingFactor
		e.mu.Unlock()
		return outcome, nil

	case passwordOK && outcome.Status == StatusAuthenticated:
		e.finishChallenge(ch.id)
		token, err := session.GenerateToken(ch.userName, e.jwtSecret, e.tokenValidity)
		if err != nil {
			return LoginOutcome{}, fmt.Errorf("mint session token: %w", err)
		}
		outcome.SessionToken = token
		e.recorder.Record(ctx, ch.userName, audit.EventLoginSuccess, "")
		return outcome, nil

	case passwordOK:
		// forced MFA without enrollment
		e.finishChallenge(ch.id)
		e.recorder.Record(ctx, ch.userName, audit.EventLoginFailFactor, "factor required but not enrolled")
		return outcome, nil

	default:
		e.finishChallenge(ch.id)
		if outcome.Status == StatusRejected || lockedNow {
			e.recorder.Record(ctx, ch.userName, audit.EventLoginFailPassword, "")
		}
		if lockedNow {
			e.recorder.Record(ctx, ch.userName, audit.EventAccountLocked, "failed attempt threshold reached")
		}
		return outcome, nil
	}
}

// SubmitFactor evaluates the second factor for a challenge that passed
// the password step. Provider unavailability fails closed: the sequence
// is rejected with a distinct reason and no counter is charged.
func (e *Engine) SubmitFactor(ctx context.Context, challengeID string, sample []byte) (LoginOutcome, error) {
	ch, err := e.challengeInState(challengeID, stateAwaitingFactor)
	if err != nil {
		return LoginOutcome{}, err
	}

	snap, err := e.store.Load(ctx)
	if err != nil {
		return LoginOutcome{}, err
	}
	u := snap.FindUser(ch.userName)
	if u == nil || !u.FactorEnrolled {
		e.finishChallenge(ch.id)
		return LoginOutcome{}, common.ErrInternal
	}
	if now := e.now(); u.IsLocked(now) {
		e.finishChallenge(ch.id)
		return LoginOutcome{Status: StatusLocked, RetryAfter: u.LockedUntil.Sub(now)}, nil
	}

	out, err := e.provider.Evaluate(ctx, u.FactorTemplateRef, sample)
	if err != nil {
		if errors.Is(err, common.ErrProviderUnavailable) {
			e.logger.Warn(ctx, "factor provider unavailable, failing closed", "error", err.Error())
			e.finishChallenge(ch.id)
			e.recorder.Record(ctx, ch.userName, audit.EventLoginFailFactor, "provider unavailable")
			return LoginOutcome{Status: StatusRejected, Reason: ReasonProviderUnavailable}, nil
		}
		return LoginOutcome{}, err
	}

	accepted := out.Matched && out.Score >= snap.Policy.FactorThreshold
	if accepted {
		e.finishChallenge(ch.id)
		token, err := session.GenerateToken(ch.userName, e.jwtSecret, e.tokenValidity)
		if err != nil {
			return LoginOutcome{}, fmt.Errorf("mint session token: %w", err)
		}
		e.recorder.Record(ctx, ch.userName, audit.EventMFASuccess, fmt.Sprintf("score=%.4f", out.Score))
		return LoginOutcome{Status: StatusAuthenticated, SessionToken: token}, nil
	}

	// Non-match counts toward lockout under the same threshold rule as
	// a wrong password.
	var (
		outcome   LoginOutcome
		lockedNow bool
	)
	err = e.store.Update(ctx, func(snap *models.Snapshot) error {
		now := e.now()
		u := snap.FindUser(ch.userName)
		if u == nil {
			outcome = LoginOutcome{Status: StatusRejected, Reason: ReasonFactorMismatch}
			return errNoChange
		}
		u.FailedAttempts++
		if u.FailedAttempts >= snap.Policy.MaxFailedAttempts {
			until := now.Add(snap.Policy.LockoutDuration.Duration)
			u.LockedUntil = &until
			u.FailedAttempts = 0
			lockedNow = true
			outcome = LoginOutcome{Status: StatusLocked, RetryAfter: snap.Policy.LockoutDuration.Duration}
		} else {
			outcome = LoginOutcome{Status: StatusRejected, Reason: ReasonFactorMismatch}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		return LoginOutcome{}, err
	}

	e.finishChallenge(ch.id)
	e.recorder.Record(ctx, ch.userName, audit.EventLoginFailFactor, fmt.Sprintf("score=%.4f", out.Score))
	if lockedNow {
		e.recorder.Record(ctx, ch.userName, audit.EventAccountLocked, "failed attempt threshold reached")
	}
	return outcome, nil
}

// ChangePassword verifies the old password (and, under forced MFA with
// an enrolled factor, a fresh factor sample) and installs a new verifier
// derived with a brand-new salt and the current policy iteration count.
func (e *Engine) ChangePassword(ctx context.Context, userName string, oldPassword, newPassword, factorSample []byte) error {
	snap, err := e.store.Load(ctx)
	if err != nil {
		return err
	}

	u := snap.FindUser(userName)
	if u == nil || u.Disabled {
		return common.ErrInvalidCredentials
	}
	if u.IsLocked(e.now()) {
		return common.ErrLocked
	}
	if len(newPassword) < snap.Policy.MinPasswordLength {
		return common.ErrWeakPassword
	}

	// Fresh factor re-verification before anything is committed.
	if snap.Policy.MFARequired && u.FactorEnrolled {
		out, err := e.provider.Evaluate(ctx, u.FactorTemplateRef, factorSample)
		if err != nil {
			return err
		}
		if !out.Matched || out.Score < snap.Policy.FactorThreshold {
			e.recorder.Record(ctx, userName, audit.EventLoginFailFactor, "password change denied")
			return common.ErrInvalidCredentials
		}
	}

	err = e.store.Update(ctx, func(snap *models.Snapshot) error {
		u := snap.FindUser(userName)
		if u == nil {
			return common.ErrInvalidCredentials
		}

		candidate := cryptox.DeriveVerifier(oldPassword, u.Salt, u.Iterations)
		if !cryptox.VerifierMatches(u.Verifier, candidate) {
			return common.ErrInvalidCredentials
		}

		salt := common.GenerateRandByteArray(cryptox.SaltLength)
		u.Salt = salt
		u.Verifier = cryptox.DeriveVerifier(newPassword, salt, snap.Policy.KDFIterations)
		u.Iterations = snap.Policy.KDFIterations
		return nil
	})
	if err != nil {
		return err
	}

	e.recorder.Record(ctx, userName, audit.EventPasswordChanged, "")
	return nil
}

// Policy returns the current security policy.
func (e *Engine) Policy(ctx context.Context) (models.SecurityPolicy, error) {
	snap, err := e.store.Load(ctx)
	if err != nil {
		return models.SecurityPolicy{}, err
	}
	return snap.Policy, nil
}

// SetPolicy replaces the security policy. Authorization is the caller's
// job; the mutation itself goes through the serialized commit path.
func (e *Engine) SetPolicy(ctx context.Context, p models.SecurityPolicy) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrPolicyViolation, err)
	}

	err := e.store.Update(ctx, func(snap *models.Snapshot) error {
		snap.Policy = p
		return nil
	})
	if err != nil {
		return err
	}

	e.recorder.Record(ctx, "", audit.EventPolicyChanged, "")
	return nil
}

// ValidateSession checks a session token and returns the username it was
// minted for.
func (e *Engine) ValidateSession(token string) (string, error) {
	return session.GetUserNameFromToken(token, e.jwtSecret)
}

func (e *Engine) challengeInState(id string, want challengeState) (*challenge, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch, ok := e.challenges[id]
	if !ok {
		return nil, common.ErrChallengeNotFound
	}
	if ch.expired(e.now()) {
		delete(e.challenges, id)
		return nil, common.ErrChallengeNotFound
	}
	if ch.state != want {
		return nil, common.ErrInvalidState
	}
	return ch, nil
}

func (e *Engine) finishChallenge(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.challenges, id)
}
