package testfixtures

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/networking-rounds/internal/application"
)

// Repository is an in-memory implementation of every application
// repository interface.
type Repository struct {
	mu            sync.Mutex
	sessions      map[string]application.Session
	registrations map[string]application.Registration
	matches       map[string]application.Match
	plans         map[string]application.MatchPlan
}

// NewRepository returns an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		sessions:      make(map[string]application.Session),
		registrations: make(map[string]application.Registration),
		matches:       make(map[string]application.Match),
		plans:         make(map[string]application.MatchPlan),
	}
}

// Seed stores session fixtures.
func (r *Repository) Seed(sessions ...SessionFixture) *Repository {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range sessions {
		r.sessions[session.ID] = session.Application()
	}
	return r
}

// SeedRegistrations stores registration fixtures.
func (r *Repository) SeedRegistrations(registrations ...RegistrationFixture) *Repository {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, registration := range registrations {
		r.registrations[registration.ID()] = registration.Application()
	}
	return r
}

func (r *Repository) GetSession(_ context.Context, id string) (application.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return application.Session{}, application.ErrNotFound
	}
	return session, nil
}

func (r *Repository) SaveSession(_ context.Context, session application.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	return nil
}

func (r *Repository) ListSessions(_ context.Context) ([]application.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]application.Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) FindSessionByRound(_ context.Context, roundID string) (application.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range r.sessions {
		if _, ok := session.Round(roundID); ok {
			return session, nil
		}
	}
	return application.Session{}, application.ErrNotFound
}

func (r *Repository) GetRegistration(_ context.Context, id string) (application.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	registration, ok := r.registrations[id]
	if !ok {
		return application.Registration{}, application.ErrNotFound
	}
	return registration, nil
}

func (r *Repository) SaveRegistration(_ context.Context, registration application.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registrations[registration.ID] = registration
	return nil
}

func (r *Repository) ListRegistrationsForRound(_ context.Context, sessionID, roundID string) ([]application.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []application.Registration
	for _, registration := range r.registrations {
		if registration.SessionID == sessionID && registration.RoundID == roundID {
			out = append(out, registration)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) GetMatch(_ context.Context, id string) (application.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	match, ok := r.matches[id]
	if !ok {
		return application.Match{}, application.ErrNotFound
	}
	match.Members = append([]application.MatchMember(nil), match.Members...)
	return match, nil
}

func (r *Repository) SaveMatch(_ context.Context, match application.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	match.Members = append([]application.MatchMember(nil), match.Members...)
	r.matches[match.ID] = match
	return nil
}

func (r *Repository) GetPlan(_ context.Context, sessionID, roundID string, instant time.Time) (application.MatchPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan, ok := r.plans[planKey(sessionID, roundID, instant)]
	if !ok {
		return application.MatchPlan{}, application.ErrNotFound
	}
	return plan, nil
}

func (r *Repository) SavePlan(_ context.Context, plan application.MatchPlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[planKey(plan.SessionID, plan.RoundID, plan.Instant)] = plan
	return nil
}

func planKey(sessionID, roundID string, instant time.Time) string {
	return sessionID + "/" + roundID + "@" + instant.UTC().Format(time.RFC3339Nano)
}

// RecordingNotifier captures every notification it is asked to send.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []application.Notification
}

// Send records the notification.
func (n *RecordingNotifier) Send(_ context.Context, notification application.Notification) (application.NotificationResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return application.NotificationSent, nil
}

// Sent returns the notifications recorded for template, or all of them when
// template is empty.
func (n *RecordingNotifier) Sent(template string) []application.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []application.Notification
	for _, notification := range n.sent {
		if template == "" || notification.Template == template {
			out = append(out, notification)
		}
	}
	return out
}
