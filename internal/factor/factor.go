// Package factor defines the second-factor boundary and its concrete
// providers. The engine only ever sees an Outcome: the template reference
// is opaque, and a provider transport failure is surfaced as
// common.ErrProviderUnavailable, never as a silent non-match.
package factor

import "context"

// Outcome is a provider's match decision plus an auditable confidence
// score. The engine uses the boolean and the score against the policy
// threshold; it never inspects anything else.
type Outcome struct {
	Matched bool
	Score   float64
}

// Provider evaluates the non-password factor.
//
// Enroll registers a reference sample for a user and returns an opaque
// template reference that the core stores but never interprets.
// Evaluate compares a live sample against a previously enrolled template.
//
// Both calls must honor context cancellation and deadlines. Transport
// failures and timeouts are reported as common.ErrProviderUnavailable.
type Provider interface {
	Enroll(ctx context.Context, userName string, sample []byte) (string, error)
	Evaluate(ctx context.Context, templateRef string, sample []byte) (Outcome, error)
}
