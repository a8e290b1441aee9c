// Package audit records authentication events: an append-only trail for
// operators plus a bounded in-memory window served to the admin surface.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/authvault/internal/logging"
)

// EventKind enumerates everything worth an audit line.
type EventKind string

const (
	EventUserRegistered    EventKind = "user_registered"
	EventLoginSuccess      EventKind = "login_success"
	EventLoginFailPassword EventKind = "login_fail_password"
	EventLoginFailFactor   EventKind = "login_fail_factor"
	EventLoginFailUnknown  EventKind = "login_fail_unknown_user"
	EventMFASuccess        EventKind = "mfa_success"
	EventAccountLocked     EventKind = "account_locked"
	EventPasswordChanged   EventKind = "password_changed"
	EventPolicyChanged     EventKind = "policy_changed"
	EventFactorEnrolled    EventKind = "factor_enrolled"
	EventFactorReset       EventKind = "factor_reset"
	EventUserDeleted       EventKind = "user_deleted"
)

// Event is one audit record.
type Event struct {
	ID       string
	Time     time.Time
	UserName string
	Kind     EventKind
	Detail   string
}

// Recorder keeps the most recent maxEvents events and mirrors every one
// to the structured log. Safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	events    []Event
	maxEvents int
	logger    logging.Logger
}

const defaultMaxEvents = 1000

func NewRecorder(logger logging.Logger) *Recorder {
	return &Recorder{
		maxEvents: defaultMaxEvents,
		logger:    logger.With("module", "audit"),
	}
}

// Record appends an event, evicting the oldest once the window is full.
func (r *Recorder) Record(ctx context.Context, userName string, kind EventKind, detail string) {
	e := Event{
		ID:       uuid.NewString(),
		Time:     time.Now(),
		UserName: userName,
		Kind:     kind,
		Detail:   detail,
	}

	r.logger.Info(ctx, "auth event", "event_id", e.ID, "username", userName, "kind", string(kind), "detail", detail)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	if len(r.events) > r.maxEvents {
		r.events = r.events[len(r.events)-r.maxEvents:]
	}
}

// Recent returns up to n most recent events, newest first.
func (r *Recorder) Recent(n int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > len(r.events) {
		n = len(r.events)
	}
	out := make([]Event, 0, n)
	for i := len(r.events) - 1; i >= len(r.events)-n; i-- {
		out = append(out, r.events[i])
	}
	return out
}
