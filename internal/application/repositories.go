package application

import (
	"context"
	"time"
)

// SessionRepository stores session definitions. Implementations return
// ErrNotFound for unknown ids and ErrStoreUnavailable for retryable failures.
type SessionRepository interface {
	GetSession(ctx context.Context, id string) (Session, error)
	SaveSession(ctx context.Context, session Session) error
	ListSessions(ctx context.Context) ([]Session, error)
	FindSessionByRound(ctx context.Context, roundID string) (Session, error)
}

// RegistrationRepository stores registrations. Each save is a single-key
// write; there is no compare-and-swap.
type RegistrationRepository interface {
	GetRegistration(ctx context.Context, id string) (Registration, error)
	SaveRegistration(ctx context.Context, registration Registration) error
	ListRegistrationsForRound(ctx context.Context, sessionID, roundID string) ([]Registration, error)
}

// MatchRepository stores matches and the plans they are built from.
type MatchRepository interface {
	GetMatch(ctx context.Context, id string) (Match, error)
	SaveMatch(ctx context.Context, match Match) error
	GetPlan(ctx context.Context, sessionID, roundID string, instant time.Time) (MatchPlan, error)
	SavePlan(ctx context.Context, plan MatchPlan) error
}

// SessionSource resolves sessions for read paths. SessionService satisfies
// it with a cache in front of the repository.
type SessionSource interface {
	Lookup(ctx context.Context, id string) (Session, error)
	LookupByRound(ctx context.Context, roundID string) (Session, Round, error)
}

// Notification templates sent by the core.
const (
	TemplateRegistrationReceived = "registration-received"
	TemplateVerifyEmail          = "verify-email"
	TemplateConfirmationWindow   = "confirmation-window-open"
	TemplateMatchAssigned        = "match-assigned"
	TemplateNoMatch              = "no-match"
)

// Notification is a message for one participant.
type Notification struct {
	Template    string
	Participant Participant
	Variables   map[string]any
}

// NotificationResult is the delivery outcome reported by a Notifier.
type NotificationResult string

const (
	NotificationSent    NotificationResult = "sent"
	NotificationSkipped NotificationResult = "skipped"
	NotificationFailed  NotificationResult = "failed"
)

// Notifier delivers notifications. Delivery problems never fail the state
// transition that triggered them.
type Notifier interface {
	Send(ctx context.Context, notification Notification) (NotificationResult, error)
}

type discardNotifier struct{}

func (discardNotifier) Send(context.Context, Notification) (NotificationResult, error) {
	return NotificationSkipped, nil
}

func defaultNotifier(n Notifier) Notifier {
	if n == nil {
		return discardNotifier{}
	}
	return n
}
