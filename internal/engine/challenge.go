package engine

import (
	"time"

	"github.com/google/uuid"
)

// challengeState is the engine-internal FSM position of one login
// sequence. Terminal positions are removed from the challenge table
// rather than stored.
type challengeState int

const (
	stateAwaitingPassword challengeState = iota
	stateAwaitingFactor
)

const challengeTTL = 5 * time.Minute

// challenge tracks one in-flight login sequence.
//
// unknownUser marks a decoy challenge created for a username that does
// not exist: it walks the same states and burns the same KDF work as a
// real one, so callers cannot probe which usernames are taken.
type challenge struct {
	id          string
	userName    string
	state       challengeState
	unknownUser bool
	// decoyIterations is the KDF round count the decoy burn uses, taken
	// from the policy at challenge creation so the cost matches a real
	// verification.
	decoyIterations int
	createdAt       time.Time
}

func newChallenge(userName string, unknownUser bool, decoyIterations int, now time.Time) *challenge {
	return &challenge{
		id:              uuid.NewString(),
		userName:        userName,
		state:           stateAwaitingPassword,
		unknownUser:     unknownUser,
		decoyIterations: decoyIterations,
		createdAt:       now,
	}
}

func (c *challenge) expired(now time.Time) bool {
	return now.Sub(c.createdAt) > challengeTTL
}
