package cli

import (
	"context"
	"os"

	"github.com/dmitrijs2005/authvault/internal/common"
	"github.com/dmitrijs2005/authvault/internal/engine"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for a username and password and creates the account.
// Factor enrollment is a separate step after login ("enroll").
func (a *App) Register(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword("Enter password", os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.engine.Register(ctx, userName, password, false, nil); err != nil {
		return err
	}

	printlnFn("Success!")
	return nil
}

// Login walks the full login sequence: password first, then the second
// factor if the outcome asks for one.
func (a *App) Login(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword("Enter password", os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	out, err := a.engine.Login(ctx, userName, password)
	if err != nil {
		return err
	}

	if out.Status == engine.StatusNeedsFactor {
		code, err := getSimpleText(a.reader, "Enter factor code", os.Stdout)
		if err != nil {
			return err
		}
		out, err = a.engine.SubmitFactor(ctx, out.ChallengeID, []byte(code))
		if err != nil {
			return err
		}
	}

	switch out.Status {
	case engine.StatusAuthenticated:
		a.userName = userName
		a.sessionToken = out.SessionToken
		printlnFn("Login successful")
	case engine.StatusLocked:
		printlnFn("Account locked, retry after", out.RetryAfter.String())
	default:
		printlnFn("Login failed:", string(out.Reason))
	}
	return nil
}

// Enroll sets up the second factor for the logged-in account and shows
// the provisioning reference (for TOTP, the otpauth:// URL to load into
// an authenticator app).
func (a *App) Enroll(ctx context.Context) error {
	if !a.isLoggedIn() {
		printlnFn("Log in first")
		return nil
	}

	sample, err := getSimpleText(a.reader, "Enter factor sample (leave empty for TOTP)", os.Stdout)
	if err != nil {
		return err
	}

	ref, err := a.engine.EnrollFactor(ctx, a.userName, []byte(sample))
	if err != nil {
		return err
	}

	printlnFn("Factor enrolled:", ref)
	return nil
}

// ChangePassword verifies the current password (and factor, if policy
// requires one) and installs a new one.
func (a *App) ChangePassword(ctx context.Context) error {
	if !a.isLoggedIn() {
		printlnFn("Log in first")
		return nil
	}

	oldPassword, err := getPassword("Enter current password", os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(oldPassword)

	newPassword, err := getPassword("Enter new password", os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(newPassword)

	code, err := getSimpleText(a.reader, "Enter factor code (leave empty if not enrolled)", os.Stdout)
	if err != nil {
		return err
	}

	if err := a.engine.ChangePassword(ctx, a.userName, oldPassword, newPassword, []byte(code)); err != nil {
		return err
	}

	printlnFn("Password changed")
	return nil
}

// Logout drops the in-memory session.
func (a *App) Logout(ctx context.Context) error {
	a.userName = ""
	a.sessionToken = ""
	printlnFn("Logged out")
	return nil
}
