package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/authvault/internal/audit"
	"github.com/dmitrijs2005/authvault/internal/common"
	"github.com/dmitrijs2005/authvault/internal/config"
	"github.com/dmitrijs2005/authvault/internal/factor"
	"github.com/dmitrijs2005/authvault/internal/logging"
	"github.com/dmitrijs2005/authvault/internal/models"
	"github.com/dmitrijs2005/authvault/internal/session"
	"github.com/dmitrijs2005/authvault/internal/store"
)

// fakeProvider echoes canned results so tests can script factor outcomes.
type fakeProvider struct {
	enrollRef   string
	enrollErr   error
	outcome     factor.Outcome
	evaluateErr error
	evaluations int
}

func (f *fakeProvider) Enroll(_ context.Context, userName string, _ []byte) (string, error) {
	if f.enrollErr != nil {
		return "", f.enrollErr
	}
	if f.enrollRef != "" {
		return f.enrollRef, nil
	}
	return "tpl-" + userName, nil
}

func (f *fakeProvider) Evaluate(_ context.Context, _ string, _ []byte) (factor.Outcome, error) {
	f.evaluations++
	if f.evaluateErr != nil {
		return factor.Outcome{}, f.evaluateErr
	}
	return f.outcome, nil
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestEngine(t *testing.T, provider factor.Provider) (*Engine, *audit.Recorder) {
	t.Helper()
	ctx := context.Background()

	logger := testLogger()
	backend, err := store.NewFileBackend(t.TempDir())
	require.NoError(t, err)

	masterKey := common.GenerateRandByteArray(32)
	st, err := store.Open(ctx, backend, masterKey, logger)
	require.NoError(t, err)

	// Cheap iterations keep the tests fast.
	require.NoError(t, st.Update(ctx, func(snap *models.Snapshot) error {
		snap.Policy.KDFIterations = 8
		snap.Policy.MFARequired = false
		return nil
	}))

	cfg := &config.Config{}
	cfg.LoadDefaults()
	recorder := audit.NewRecorder(logger)
	return New(st, provider, recorder, logger, cfg), recorder
}

func setPolicy(t *testing.T, e *Engine, mutate func(*models.SecurityPolicy)) {
	t.Helper()
	ctx := context.Background()
	p, err := e.Policy(ctx)
	require.NoError(t, err)
	mutate(&p)
	require.NoError(t, e.SetPolicy(ctx, p))
}

func TestRegisterAndLoginPasswordOnly(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, &fakeProvider{})

	require.NoError(t, e.Register(ctx, "alice", []byte("hunter22"), false, nil))

	out, err := e.Login(ctx, "alice", []byte("hunter22"))
	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticated, out.Status)
	assert.NotEmpty(t, out.SessionToken)

	cfg := &config.Config{}
	cfg.LoadDefaults()
	user, err := session.GetUserNameFromToken(out.SessionToken, []byte(cfg.SecretKey))
	require.NoError(t, err)
	assert.Equal(t, "alice", user)
}

func TestRegisterRejectsDuplicateAndWeakPassword(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, &fakeProvider{})

	require.NoError(t, e.Register(ctx, "alice", []byte("hunter22"), false, nil))

	err := e.Register(ctx, "alice", []byte("different8"), false, nil)
	assert.ErrorIs(t, err, common.ErrUsernameTaken)

	err = e.Register(ctx, "bob", []byte("short"), false, nil)
	assert.ErrorIs(t, err, common.ErrWeakPassword)
}

func TestLoginWrongPassword(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, &fakeProvider{})
	require.NoError(t, e.Register(ctx, "alice", []byte("hunter22"), false, nil))

	out, err := e.Login(ctx, "alice", []byte("wrong-pass"))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, ReasonInvalidCredentials, out.Reason)
	assert.Empty(t, out.SessionToken)
}

func TestLoginUnknownUserIndistinguishable(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, &fakeProvider{})
	require.NoError(t, e.Register(ctx, "alice", []byte("hunter22"), false, nil))

	known, err := e.Login(ctx, "alice", []byte("wrong-pass"))
	require.NoError(t, err)
	unknown, err := e.Login(ctx, "nobody", []byte("wrong-pass"))
	require.NoError(t, err)

	assert.Equal(t, known.Status, unknown.Status)
	assert.Equal(t, known.Reason, unknown.Reason)
}

func TestLockoutAtThreshold(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, &fakeProvider{})
	require.NoError(t, e.Register(ctx, "alice", []byte("hunter22"), false, nil))
	setPolicy(t, e, func(p *models.SecurityPolicy) { p.MaxFailedAttempts = 3 })

	for i := 0; i < 2; i++ {
		out, err := e.Login(ctx, "alice", []byte("wrong-pass"))
		require.NoError(t, err)
		assert.Equal(t, StatusRejected, out.Status)
	}

	// Third failure crosses the threshold.
	out, err := e.Login(ctx, "alice", []byte("wrong-pass"))
	require.NoError(t, err)
	assert.Equal(t, StatusLocked, out.Status)
	assert.Greater(t, out.RetryAfter, time.Duration(0))

	// Even the correct password is refused while locked.
	out, err = e.Login(ctx, "alice", []byte("hunter22"))
	require.NoError(t, err)
	assert.Equal(t, StatusLocked, out.Status)
}

func TestCounterResetsOnSuccess(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, &fakeProvider{})
	require.NoError(t, e.Register(ctx, "alice", []byte("hunter22"), false, nil))
	setPolicy(t, e, func(p *models.SecurityPolicy) { p.MaxFailedAttempts = 3 })

	for i := 0; i < 2; i++ {
		out, err := e.Login(ctx, "alice", []byte("wrong-pass"))
		require.NoError(t, err)
		require.Equal(t, StatusRejected, out.Status)
	}

	out, err := e.Login(ctx, "alice", []byte("hunter22"))
	require.NoError(t, err)
	require.Equal(t, StatusAuthenticated, out.Status)

	// The successful login reset the counter, so two more failures
	// still stay under the threshold.
	for i := 0; i < 2; i++ {
		out, err = e.Login(ctx, "alice", []byte("wrong-pass"))
		require.NoError(t, err)
		assert.Equal(t, StatusRejected, out.Status)
	}
}

func TestLockExpires(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, &fakeProvider{})
	require.NoError(t, e.Register(ctx, "alice", []byte("hunter22"), false, nil))
	setPolicy(t, e, func(p *models.SecurityPolicy) { p.MaxFailedAttempts = 1 })

	out, err := e.Login(ctx, "alice", []byte("wrong-pass"))
	require.NoError(t, err)
	require.Equal(t, StatusLocked, out.Status)

	e.now = func() time.Time { return time.Now().Add(16 * time.Minute) }

	out, err = e.Login(ctx, "alice", []byte("hunter22"))
	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticated, out.Status)
}

func TestMFAHappyPath(t *testing.T) {
	ctx := context.Background()
	fp := &fakeProvider{outcome: factor.Outcome{Matched: true, Score: 0.93}}
	e, _ := newTestEngine(t, fp)

	require.NoError(t, e.Register(ctx, "alice", []byte("hunter22"), true, []byte("sample")))
	setPolicy(t, e, func(p *models.SecurityPolicy) { p.MFARequired = true })

	out, err := e.Login(ctx, "alice", []byte("hunter22"))
	require.NoError(t, err)
	require.Equal(t, StatusNeedsFactor, out.Status)
	require.NotEmpty(t, out.ChallengeID)
	assert.Empty(t, out.SessionToken)

	out, err = e.SubmitFactor(ctx, out.ChallengeID, []byte("sample"))
	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticated, out.Status)
	assert.NotEmpty(t, out.SessionToken)
}

func TestMFAFactorMismatch(t *testing.T) {
	ctx := context.Background()
	fp := &fakeProvider{outcome: factor.Outcome{Matched: false, Score: 0.21}}
	e, _ := newTestEngine(t, fp)

	require.NoError(t, e.Register(ctx, "alice", []byte("hunter22"), true, []byte("sample")))
	setPolicy(t, e, func(p *models.SecurityPolicy) { p.MFARequired = true })

	out, err := e.Login(ctx, "alice", []byte("hunter22"))
	require.NoError(t, err)
	require.Equal(t, StatusNeedsFactor, out.Status)

	out, err = e.SubmitFactor(ctx, out.ChallengeID, []byte("bad-sample"))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, ReasonFactorMismatch, out.Reason)

	// The challenge is spent.
	_, err = e.SubmitFactor(ctx, out.ChallengeID, []byte("bad-sample"))
	assert.ErrorIs(t, err, common.ErrChallengeNotFound)
}

func TestMFAScoreBelowThreshold(t *testing.T) {
	ctx := context.Background()
	fp := &fakeProvider{outcome: factor.Outcome{Matched: true, Score: 0.5}}
	e, _ := newTestEngine(t, fp)

	require.NoError(t, e.Register(ctx, "alice", []byte("hunter22"), true, []byte("sample")))
	setPolicy(t, e, func(p *models.SecurityPolicy) {
		p.MFARequired = true
		p.FactorThreshold = 0.7
	})

	out, err := e.Login(ctx, "alice", []byte("hunter22"))
	require.NoError(t, err)
	require.Equal(t, StatusNeedsFactor, out.Status)

	// Matched but under threshold counts as a mismatch.
	out, err = e.SubmitFactor(ctx, out.ChallengeID, []byte("sample"))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, ReasonFactorMismatch, out.Reason)
}

func TestMFARequiredButNotEnrolled(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, &fakeProvider{})

	require.NoError(t, e.Register(ctx, "alice", []byte("hunter22"), false, nil))
	setPolicy(t, e, func(p *models.SecurityPolicy) { p.MFARequired = true })

	out, err := e.Login(ctx, "alice", []byte("hunter22"))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, ReasonFactorNotEnrolled, out.Reason)
}

func TestMFAProviderUnavailableFailsClosed(t *testing.T) {
	ctx := context.Background()
	fp := &fakeProvider{evaluateErr: common.ErrProviderUnavailable}
	e, _ := newTestEngine(t, fp)

	require.NoError(t, e.Register(ctx, "alice", []byte("hunter22"), true, []byte("sample")))
	setPolicy(t, e, func(p *models.SecurityPolicy) {
		p.MFARequired = true
		p.MaxFailedAttempts = 3
	})

	out, err := e.Login(ctx, "alice", []byte("hunter22"))
	require.NoError(t, err)
	require.Equal(t, StatusNeedsFactor, out.Status)

	out, err = e.SubmitFactor(ctx, out.ChallengeID, []byte("sample"))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, ReasonProviderUnavailable, out.Reason)

	// An outage is not the user's fault: no lockout charge, so a full
	// round of provider failures never locks the account.
	for i := 0; i < 3; i++ {
		out, err = e.Login(ctx, "alice", []byte("hunter22"))
		require.NoError(t, err)
		require.Equal(t, StatusNeedsFactor, out.Status)
		out, err = e.SubmitFactor(ctx, out.ChallengeID, []byte("sample"))
		require.NoError(t, err)
		require.Equal(t, StatusRejected, out.Status)
	}
	out, err = e.Login(ctx, "alice", []byte("hunter22"))
	require.NoError(t, err)
	assert.Equal(t, StatusNeedsFactor, out.Status)
}

func TestFactorFailuresCountTowardLockout(t *testing.T) {
	ctx := context.Background()
	fp := &fakeProvider{outcome: factor.Outcome{Matched: false}}
	e, _ := newTestEngine(t, fp)

	require.NoError(t, e.Register(ctx, "alice", []byte("hunter22"), true, []byte("sample")))
	setPolicy(t, e, func(p *models.SecurityPolicy) {
		p.MFARequired = true
		p.MaxFailedAttempts = 1
	})

	out, err := e.Login(ctx, "alice", []byte("hunter22"))
	require.NoError(t, err)
	require.Equal(t, StatusNeedsFactor, out.Status)

	out, err = e.SubmitFactor(ctx, out.ChallengeID, []byte("bad"))
	require.NoError(t, err)
	assert.Equal(t, StatusLocked, out.Status)

	out, err = e.Login(ctx, "alice", []byte("hunter22"))
	require.NoError(t, err)
	assert.Equal(t, StatusLocked, out.Status)
}

func TestSubmitFactorWrongState(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, &fakeProvider{})
	require.NoError(t, e.Register(ctx, "alice", []byte("hunter22"), false, nil))

	out, err := e.BeginLogin(ctx, "alice")
	require.NoError(t, err)

	// Factor before password is an ordering violation.
	_, err = e.SubmitFactor(ctx, out.ChallengeID, []byte("sample"))
	assert.ErrorIs(t, err, common.ErrInvalidState)
}

func TestChallengeExpires(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, &fakeProvider{})
	require.NoError(t, e.Register(ctx, "alice", []byte("hunter22"), false, nil))

	out, err := e.BeginLogin(ctx, "alice")
	require.NoError(t, err)

	e.now = func() time.Time { return time.Now().Add(6 * time.Minute) }

	_, err = e.SubmitPassword(ctx, out.ChallengeID, []byte("hunter22"))
	assert.ErrorIs(t, err, common.ErrChallengeNotFound)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, &fakeProvider{})
	require.NoError(t, e.Register(ctx, "alice", []byte("hunter22"), false, nil))

	err := e.ChangePassword(ctx, "alice", []byte("wrong-old"), []byte("newpass88"), nil)
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	err = e.ChangePassword(ctx, "alice", []byte("hunter22"), []byte("tiny"), nil)
	assert.ErrorIs(t, err, common.ErrWeakPassword)

	require.NoError(t, e.ChangePassword(ctx, "alice", []byte("hunter22"), []byte("newpass88"), nil))

	out, err := e.Login(ctx, "alice", []byte("hunter22"))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)

	out, err = e.Login(ctx, "alice", []byte("newpass88"))
	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticated, out.Status)
}

func TestChangePasswordRequiresFreshFactor(t *testing.T) {
	ctx := context.Background()
	fp := &fakeProvider{outcome: factor.Outcome{Matched: true, Score: 0.95}}
	e, _ := newTestEngine(t, fp)

	require.NoError(t, e.Register(ctx, "alice", []byte("hunter22"), true, []byte("sample")))
	setPolicy(t, e, func(p *models.SecurityPolicy) { p.MFARequired = true })

	fp.outcome = factor.Outcome{Matched: false, Score: 0.1}
	err := e.ChangePassword(ctx, "alice", []byte("hunter22"), []byte("newpass88"), []byte("bad"))
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	fp.outcome = factor.Outcome{Matched: true, Score: 0.95}
	require.NoError(t, e.ChangePassword(ctx, "alice", []byte("hunter22"), []byte("newpass88"), []byte("sample")))
}

func TestEnrollFactorOnExistingAccount(t *testing.T) {
	ctx := context.Background()
	fp := &fakeProvider{outcome: factor.Outcome{Matched: true, Score: 0.9}}
	e, _ := newTestEngine(t, fp)

	require.NoError(t, e.Register(ctx, "alice", []byte("hunter22"), false, nil))
	setPolicy(t, e, func(p *models.SecurityPolicy) { p.MFARequired = true })

	out, err := e.Login(ctx, "alice", []byte("hunter22"))
	require.NoError(t, err)
	require.Equal(t, StatusRejected, out.Status)
	require.Equal(t, ReasonFactorNotEnrolled, out.Reason)

	ref, err := e.EnrollFactor(ctx, "alice", []byte("sample"))
	require.NoError(t, err)
	assert.Equal(t, "tpl-alice", ref)

	out, err = e.Login(ctx, "alice", []byte("hunter22"))
	require.NoError(t, err)
	require.Equal(t, StatusNeedsFactor, out.Status)

	out, err = e.SubmitFactor(ctx, out.ChallengeID, []byte("sample"))
	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticated, out.Status)

	_, err = e.EnrollFactor(ctx, "nobody", []byte("sample"))
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSetPolicyValidation(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, &fakeProvider{})

	p, err := e.Policy(ctx)
	require.NoError(t, err)
	p.MaxFailedAttempts = 0

	assert.ErrorIs(t, e.SetPolicy(ctx, p), common.ErrPolicyViolation)
}

func TestAuditTrail(t *testing.T) {
	ctx := context.Background()
	e, rec := newTestEngine(t, &fakeProvider{})

	require.NoError(t, e.Register(ctx, "alice", []byte("hunter22"), false, nil))

	out, err := e.Login(ctx, "alice", []byte("wrong-pass"))
	require.NoError(t, err)
	require.Equal(t, StatusRejected, out.Status)

	out, err = e.Login(ctx, "alice", []byte("hunter22"))
	require.NoError(t, err)
	require.Equal(t, StatusAuthenticated, out.Status)

	events := rec.Recent(10)
	require.Len(t, events, 3) // registered + fail + success
	assert.Equal(t, audit.EventLoginSuccess, events[0].Kind)
	assert.Equal(t, audit.EventLoginFailPassword, events[1].Kind)
}

func TestValidateSession(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, &fakeProvider{})
	require.NoError(t, e.Register(ctx, "alice", []byte("hunter22"), false, nil))

	out, err := e.Login(ctx, "alice", []byte("hunter22"))
	require.NoError(t, err)
	require.Equal(t, StatusAuthenticated, out.Status)

	user, err := e.ValidateSession(out.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", user)

	_, err = e.ValidateSession(out.SessionToken + "x")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}
