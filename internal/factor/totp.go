package factor

import (
	"context"
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPProvider implements the factor boundary with time-based one-time
// passwords. The template reference is the standard otpauth:// URL; the
// live sample is the 6-digit code the user types.
//
// It needs no network, which also makes it the deterministic provider of
// choice for development setups without a face-matching vendor.
type TOTPProvider struct {
	issuer string
}

func NewTOTPProvider(issuer string) *TOTPProvider {
	return &TOTPProvider{issuer: issuer}
}

// Enroll generates a fresh TOTP key for the user. The sample is unused:
// there is nothing to capture at enrollment time.
func (p *TOTPProvider) Enroll(ctx context.Context, userName string, sample []byte) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.issuer,
		AccountName: userName,
	})
	if err != nil {
		return "", fmt.Errorf("generate totp key: %w", err)
	}
	return key.URL(), nil
}

// Evaluate checks the submitted code against the enrolled key. TOTP is a
// binary check, so a match always carries score 1.
func (p *TOTPProvider) Evaluate(ctx context.Context, templateRef string, sample []byte) (Outcome, error) {
	key, err := otp.NewKeyFromURL(templateRef)
	if err != nil {
		return Outcome{}, fmt.Errorf("parse template ref: %w", err)
	}

	if totp.Validate(string(sample), key.Secret()) {
		return Outcome{Matched: true, Score: 1}, nil
	}
	return Outcome{Matched: false, Score: 0}, nil
}
