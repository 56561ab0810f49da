package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/example/networking-rounds/internal/clock"
	"github.com/example/networking-rounds/internal/phase"
)

// memoryRepo implements every repository interface on maps. The fail hooks
// let tests inject store failures at precise points.
type memoryRepo struct {
	mu            sync.Mutex
	sessions      map[string]Session
	registrations map[string]Registration
	matches       map[string]Match
	plans         map[string]MatchPlan

	failSaveRegistration func(Registration) error
	failSavePlan         error
	failListRound        map[string]error
	onListRound          func()
	planSaves            int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		sessions:      make(map[string]Session),
		registrations: make(map[string]Registration),
		matches:       make(map[string]Match),
		plans:         make(map[string]MatchPlan),
		failListRound: make(map[string]error),
	}
}

func planKey(sessionID, roundID string, instant time.Time) string {
	return sessionID + "/" + roundID + "@" + instant.UTC().Format(time.RFC3339Nano)
}

func (r *memoryRepo) GetSession(_ context.Context, id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return cloneSession(session), nil
}

func (r *memoryRepo) SaveSession(_ context.Context, session Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = cloneSession(session)
	return nil
}

func (r *memoryRepo) ListSessions(_ context.Context) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		out = append(out, cloneSession(session))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) FindSessionByRound(_ context.Context, roundID string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range r.sessions {
		if _, ok := session.Round(roundID); ok {
			return cloneSession(session), nil
		}
	}
	return Session{}, ErrNotFound
}

func (r *memoryRepo) GetRegistration(_ context.Context, id string) (Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	registration, ok := r.registrations[id]
	if !ok {
		return Registration{}, ErrNotFound
	}
	return registration, nil
}

func (r *memoryRepo) SaveRegistration(_ context.Context, registration Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSaveRegistration != nil {
		if err := r.failSaveRegistration(registration); err != nil {
			return err
		}
	}
	r.registrations[registration.ID] = registration
	return nil
}

func (r *memoryRepo) ListRegistrationsForRound(_ context.Context, sessionID, roundID string) ([]Registration, error) {
	r.mu.Lock()
	hook := r.onListRound
	r.onListRound = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failListRound[roundID]; err != nil {
		return nil, err
	}
	var out []Registration
	for _, registration := range r.registrations {
		if registration.SessionID == sessionID && registration.RoundID == roundID {
			out = append(out, registration)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) GetMatch(_ context.Context, id string) (Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	match, ok := r.matches[id]
	if !ok {
		return Match{}, ErrNotFound
	}
	members := make([]MatchMember, len(match.Members))
	copy(members, match.Members)
	match.Members = members
	return match, nil
}

func (r *memoryRepo) SaveMatch(_ context.Context, match Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := make([]MatchMember, len(match.Members))
	copy(members, match.Members)
	match.Members = members
	r.matches[match.ID] = match
	return nil
}

func (r *memoryRepo) GetPlan(_ context.Context, sessionID, roundID string, instant time.Time) (MatchPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan, ok := r.plans[planKey(sessionID, roundID, instant)]
	if !ok {
		return MatchPlan{}, ErrNotFound
	}
	return plan, nil
}

func (r *memoryRepo) SavePlan(_ context.Context, plan MatchPlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSavePlan != nil {
		return r.failSavePlan
	}
	r.planSaves++
	r.plans[planKey(plan.SessionID, plan.RoundID, plan.Instant)] = plan
	return nil
}

func (r *memoryRepo) registration(t *testing.T, id string) Registration {
	t.Helper()
	registration, err := r.GetRegistration(context.Background(), id)
	if err != nil {
		t.Fatalf("registration %s: %v", id, err)
	}
	return registration
}

func (r *memoryRepo) matchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matches)
}

// recordingNotifier captures notifications.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, notification Notification) (NotificationResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	if n.err != nil {
		return NotificationFailed, n.err
	}
	return NotificationSent, nil
}

func (n *recordingNotifier) byTemplate(template string) []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Notification
	for _, notification := range n.sent {
		if notification.Template == template {
			out = append(out, notification)
		}
	}
	return out
}

// manualClock is a clock.Clock whose time and ticks are driven by the test.
type manualClock struct {
	mu      sync.Mutex
	current time.Time
	ticks   chan time.Time
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{current: start, ticks: make(chan time.Time, 1)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

func (c *manualClock) NewTicker(time.Duration) *clock.Ticker {
	return clock.NewTicker(c.ticks, nil)
}

// at returns 2024-05-21 hh:mm:ss UTC.
func at(hour, minute, second int) time.Time {
	return time.Date(2024, time.May, 21, hour, minute, second, 0, time.UTC)
}

// testEnv wires every service over one memoryRepo.
type testEnv struct {
	repo          *memoryRepo
	clock         *manualClock
	notifier      *recordingNotifier
	sessions      *SessionService
	registrations *RegistrationService
	matching      *MatchingService
	outcomes      *OutcomeService
	driver        *Driver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := newMemoryRepo()
	clk := newManualClock(at(13, 0, 0))
	notifier := &recordingNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	params := phase.DefaultParameters()

	var seq int
	var seqMu sync.Mutex
	ids := func() string {
		seqMu.Lock()
		defer seqMu.Unlock()
		seq++
		return fmt.Sprintf("id-%03d", seq)
	}

	sessions := NewSessionService(repo, params, SessionCacheConfig{}, ids, clk.Now, logger)
	registrations := NewRegistrationService(sessions, repo, repo, notifier, params, testArgon2idParams, clk.Now, logger)
	matchingService := NewMatchingService(repo, repo, notifier, ids, nil, clk.Now, logger)
	outcomes := NewOutcomeService(sessions, repo, repo, params, clk.Now, logger)
	driver := NewDriver(sessions, repo, repo, matchingService, outcomes, notifier, clk, logger)

	return &testEnv{
		repo:          repo,
		clock:         clk,
		notifier:      notifier,
		sessions:      sessions,
		registrations: registrations,
		matching:      matchingService,
		outcomes:      outcomes,
		driver:        driver,
	}
}

// sampleSession is a published session with one 15 minute round at 14:00.
func sampleSession() Session {
	return Session{
		ID:          "session-1",
		OrganizerID: "organizer-1",
		Title:       "Spring mixer",
		Status:      phase.SessionPublished,
		StartsAt:    at(14, 0, 0),
		EndsAt:      at(14, 15, 0),
		GroupSize:   2,
		Teams:       []string{"red", "blue"},
		Topics:      []string{"go", "design"},
		Rounds: []Round{
			{ID: "round-1", Name: "First", StartsAt: at(14, 0, 0), Duration: 15 * time.Minute},
		},
		MeetingPoints: []MeetingPoint{
			{ID: "mp-1", Name: "Lobby", Kind: MeetingPointPhysical},
			{ID: "mp-2", Name: "Video", Kind: MeetingPointVirtual, VideoURL: "https://meet.example.com/abc"},
		},
	}
}

func (e *testEnv) seedSession(t *testing.T, session Session) Session {
	t.Helper()
	if err := e.repo.SaveSession(context.Background(), session); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return session
}

// register registers participant for round-1 of session-1 at the current
// clock time.
func (e *testEnv) register(t *testing.T, participantID string) Registration {
	t.Helper()
	result, err := e.registrations.RegisterParticipant(context.Background(), RegisterParams{
		SessionID:   "session-1",
		RoundIDs:    []string{"round-1"},
		Participant: Participant{ID: participantID, Name: participantID, Email: participantID + "@example.com"},
	})
	if err != nil {
		t.Fatalf("register %s: %v", participantID, err)
	}
	return result.Registrations[0]
}

func (e *testEnv) confirm(t *testing.T, registration Registration) Registration {
	t.Helper()
	confirmed, err := e.registrations.ConfirmAttendance(context.Background(), Principal{ParticipantID: registration.Participant.ID}, registration.ID)
	if err != nil {
		t.Fatalf("confirm %s: %v", registration.ID, err)
	}
	return confirmed
}

// confirmedPool registers and confirms n participants for round-1, leaving
// the clock at 13:57.
func (e *testEnv) confirmedPool(t *testing.T, n int) []Registration {
	t.Helper()
	e.clock.Set(at(13, 0, 0))
	registered := make([]Registration, 0, n)
	for i := 0; i < n; i++ {
		registered = append(registered, e.register(t, participantName(i)))
	}
	e.clock.Set(at(13, 57, 0))
	out := make([]Registration, 0, n)
	for _, r := range registered {
		out = append(out, e.confirm(t, r))
	}
	return out
}

func participantName(i int) string {
	return string(rune('a'+i)) + "-participant"
}
