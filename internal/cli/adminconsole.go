package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/authvault/internal/common"
	"github.com/dmitrijs2005/authvault/internal/timex"
)

// AdminLogin prompts for the admin password and enters the admin console.
func (a *App) AdminLogin(ctx context.Context) error {
	password, err := getPassword("Enter admin password", os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.admin.Login(ctx, password); err != nil {
		return err
	}

	a.adminMode = true
	printlnFn("Admin console. Type 'help' for commands.")
	return nil
}

func (a *App) AdminLogout(ctx context.Context) error {
	a.adminMode = false
	printlnFn("Left admin console")
	return nil
}

func (a *App) requireAdmin() bool {
	if !a.adminMode {
		printlnFn("Admin login required (type 'admin')")
		return false
	}
	return true
}

func (a *App) AdminUsers(ctx context.Context) error {
	if !a.requireAdmin() {
		return nil
	}

	users, err := a.admin.ListUsers(ctx)
	if err != nil {
		return err
	}

	for _, u := range users {
		state := "active"
		switch {
		case u.Disabled:
			state = "disabled"
		case u.LockedUntil != nil && u.LockedUntil.After(time.Now()):
			state = "locked until " + u.LockedUntil.Format(time.RFC3339)
		}
		printlnFn(fmt.Sprintf("%s\tenrolled=%t\tfailed=%d\t%s", u.UserName, u.FactorEnrolled, u.FailedAttempts, state))
	}
	printlnFn(fmt.Sprintf("%d user(s)", len(users)))
	return nil
}

func (a *App) AdminDelete(ctx context.Context, args []string) error {
	if !a.requireAdmin() {
		return nil
	}
	if len(args) != 1 {
		printlnFn("Usage: delete <username>")
		return nil
	}

	if err := a.admin.DeleteUser(ctx, args[0]); err != nil {
		return err
	}
	printlnFn("Deleted", args[0])
	return nil
}

func (a *App) AdminResetFactor(ctx context.Context, args []string) error {
	if !a.requireAdmin() {
		return nil
	}
	if len(args) != 1 {
		printlnFn("Usage: resetfactor <username>")
		return nil
	}

	if err := a.admin.ResetFactor(ctx, args[0]); err != nil {
		return err
	}
	printlnFn("Factor enrollment cleared for", args[0])
	return nil
}

func (a *App) AdminUnlock(ctx context.Context, args []string) error {
	if !a.requireAdmin() {
		return nil
	}
	if len(args) != 1 {
		printlnFn("Usage: unlock <username>")
		return nil
	}

	if err := a.admin.Unlock(ctx, args[0]); err != nil {
		return err
	}
	printlnFn("Unlocked", args[0])
	return nil
}

func (a *App) AdminStats(ctx context.Context) error {
	if !a.requireAdmin() {
		return nil
	}

	stats, err := a.admin.Stats(ctx)
	if err != nil {
		return err
	}

	printlnFn(fmt.Sprintf("users=%d enrolled=%d locked=%d disabled=%d",
		stats.TotalUsers, stats.EnrolledUsers, stats.LockedUsers, stats.DisabledUsers))
	return nil
}

func (a *App) AdminEvents(ctx context.Context) error {
	if !a.requireAdmin() {
		return nil
	}

	for _, e := range a.admin.RecentEvents(20) {
		line := fmt.Sprintf("%s\t%s\t%s", e.Time.Format(time.RFC3339), e.Kind, e.UserName)
		if e.Detail != "" {
			line += "\t" + e.Detail
		}
		printlnFn(line)
	}
	return nil
}

func (a *App) AdminPolicy(ctx context.Context) error {
	if !a.requireAdmin() {
		return nil
	}

	p, err := a.admin.Policy(ctx)
	if err != nil {
		return err
	}

	printlnFn(fmt.Sprintf("mfa_required=%t max_failed_attempts=%d lockout_duration=%s kdf_iterations=%d factor_threshold=%.2f min_password_length=%d",
		p.MFARequired, p.MaxFailedAttempts, p.LockoutDuration.Duration, p.KDFIterations, p.FactorThreshold, p.MinPasswordLength))
	return nil
}

// AdminSetPolicy edits the policy interactively. Empty input keeps the
// current value of a field.
func (a *App) AdminSetPolicy(ctx context.Context) error {
	if !a.requireAdmin() {
		return nil
	}

	p, err := a.admin.Policy(ctx)
	if err != nil {
		return err
	}

	if v, err := a.promptField(fmt.Sprintf("mfa_required [%t]", p.MFARequired)); err != nil {
		return err
	} else if v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("mfa_required: %w", err)
		}
		p.MFARequired = b
	}

	if v, err := a.promptField(fmt.Sprintf("max_failed_attempts [%d]", p.MaxFailedAttempts)); err != nil {
		return err
	} else if v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("max_failed_attempts: %w", err)
		}
		p.MaxFailedAttempts = n
	}

	if v, err := a.promptField(fmt.Sprintf("lockout_duration [%s]", p.LockoutDuration.Duration)); err != nil {
		return err
	} else if v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("lockout_duration: %w", err)
		}
		p.LockoutDuration = timex.Duration{Duration: d}
	}

	if v, err := a.promptField(fmt.Sprintf("kdf_iterations [%d]", p.KDFIterations)); err != nil {
		return err
	} else if v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("kdf_iterations: %w", err)
		}
		p.KDFIterations = n
	}

	if v, err := a.promptField(fmt.Sprintf("factor_threshold [%.2f]", p.FactorThreshold)); err != nil {
		return err
	} else if v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("factor_threshold: %w", err)
		}
		p.FactorThreshold = f
	}

	if v, err := a.promptField(fmt.Sprintf("min_password_length [%d]", p.MinPasswordLength)); err != nil {
		return err
	} else if v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("min_password_length: %w", err)
		}
		p.MinPasswordLength = n
	}

	if err := a.admin.SetPolicy(ctx, p); err != nil {
		return err
	}

	printlnFn("Policy updated")
	return nil
}

func (a *App) promptField(prompt string) (string, error) {
	return getSimpleText(a.reader, prompt+" (empty keeps current)", os.Stdout)
}
