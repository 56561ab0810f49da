package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/networking-rounds/internal/application"
	"github.com/example/networking-rounds/internal/lifecycle"
	"github.com/example/networking-rounds/internal/persistence"
	"github.com/example/networking-rounds/internal/phase"
)

var (
	sessionCounter      uint64
	registrationCounter uint64
)

// referenceTime is one hour before the first round of a default session
// fixture, so registration is open.
var referenceTime = time.Date(2024, time.May, 21, 13, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ---------------------------- Session fixtures ----------------------------

// RoundFixture describes one round of a session fixture.
type RoundFixture struct {
	ID        string
	Name      string
	StartsAt  time.Time
	Duration  time.Duration
	GroupSize int
}

// SessionFixture represents a deterministic session definition.
type SessionFixture struct {
	ID                         string
	OrganizerID                string
	Title                      string
	Status                     phase.SessionStatus
	PublishAt                  *time.Time
	GroupSize                  int
	MaxParticipants            int
	MaxGroups                  int
	RequireEmailVerification   bool
	NotifyOnConfirmationWindow bool
	TeamsExclusive             bool
	TopicsRequireOverlap       bool
	Teams                      []string
	Topics                     []string
	Rounds                     []RoundFixture
	MeetingPoints              []application.MeetingPoint
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

// SessionOption configures the generated session fixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a published session with one fifteen minute
// round starting an hour after ReferenceTime and two meeting points.
func NewSessionFixture(opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	id := fmt.Sprintf("session-%03d", idx)
	fixture := SessionFixture{
		ID:          id,
		OrganizerID: fmt.Sprintf("organizer-%03d", idx),
		Title:       fmt.Sprintf("Session %03d", idx),
		Status:      phase.SessionPublished,
		GroupSize:   2,
		Teams:       []string{"red", "blue"},
		Topics:      []string{"go", "design"},
		Rounds: []RoundFixture{{
			ID:       id + "-round-1",
			Name:     "Round 1",
			StartsAt: referenceTime.Add(time.Hour),
			Duration: 15 * time.Minute,
		}},
		MeetingPoints: []application.MeetingPoint{
			{ID: id + "-mp-1", Name: "Lobby", Kind: application.MeetingPointPhysical},
			{ID: id + "-mp-2", Name: "Video room", Kind: application.MeetingPointVirtual, VideoURL: "https://meet.example.com/" + id},
		},
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) SessionOption {
	return func(f *SessionFixture) {
		f.ID = id
	}
}

// WithOrganizer sets the owning organizer.
func WithOrganizer(id string) SessionOption {
	return func(f *SessionFixture) {
		f.OrganizerID = id
	}
}

// WithSessionStatus sets the explicit session status.
func WithSessionStatus(status phase.SessionStatus) SessionOption {
	return func(f *SessionFixture) {
		f.Status = status
	}
}

// WithPublishAt schedules the session.
func WithPublishAt(t time.Time) SessionOption {
	return func(f *SessionFixture) {
		at := t
		f.PublishAt = &at
		f.Status = phase.SessionScheduled
	}
}

// WithGroupSize sets the session group size.
func WithGroupSize(size int) SessionOption {
	return func(f *SessionFixture) {
		f.GroupSize = size
	}
}

// WithEmailVerification requires email verification.
func WithEmailVerification() SessionOption {
	return func(f *SessionFixture) {
		f.RequireEmailVerification = true
	}
}

// WithConfirmationReminders turns on notifications when the confirmation
// window opens.
func WithConfirmationReminders() SessionOption {
	return func(f *SessionFixture) {
		f.NotifyOnConfirmationWindow = true
	}
}

// WithRounds replaces the rounds.
func WithRounds(rounds ...RoundFixture) SessionOption {
	return func(f *SessionFixture) {
		f.Rounds = append([]RoundFixture(nil), rounds...)
	}
}

// WithRoundStart moves the first round.
func WithRoundStart(t time.Time) SessionOption {
	return func(f *SessionFixture) {
		if len(f.Rounds) > 0 {
			f.Rounds[0].StartsAt = t
		}
	}
}

// WithoutMeetingPoints clears the meeting points.
func WithoutMeetingPoints() SessionOption {
	return func(f *SessionFixture) {
		f.MeetingPoints = nil
	}
}

// RoundID returns the id of the first round.
func (f SessionFixture) RoundID() string {
	if len(f.Rounds) == 0 {
		return ""
	}
	return f.Rounds[0].ID
}

// Principal returns the organizer principal owning the session.
func (f SessionFixture) Principal() application.Principal {
	return application.Principal{OrganizerID: f.OrganizerID}
}

// Application returns the fixture as an application.Session value.
func (f SessionFixture) Application() application.Session {
	session := application.Session{
		ID:                         f.ID,
		OrganizerID:                f.OrganizerID,
		Title:                      f.Title,
		Status:                     f.Status,
		PublishAt:                  copyTimePtr(f.PublishAt),
		GroupSize:                  f.GroupSize,
		MaxParticipants:            f.MaxParticipants,
		MaxGroups:                  f.MaxGroups,
		RequireEmailVerification:   f.RequireEmailVerification,
		NotifyOnConfirmationWindow: f.NotifyOnConfirmationWindow,
		TeamsExclusive:             f.TeamsExclusive,
		TopicsRequireOverlap:       f.TopicsRequireOverlap,
		Teams:                      append([]string(nil), f.Teams...),
		Topics:                     append([]string(nil), f.Topics...),
		MeetingPoints:              append([]application.MeetingPoint(nil), f.MeetingPoints...),
		CreatedAt:                  f.CreatedAt,
		UpdatedAt:                  f.UpdatedAt,
	}
	for _, round := range f.Rounds {
		session.Rounds = append(session.Rounds, application.Round{
			ID:        round.ID,
			Name:      round.Name,
			StartsAt:  round.StartsAt,
			Duration:  round.Duration,
			GroupSize: round.GroupSize,
		})
	}
	session.StartsAt, session.EndsAt = f.bounds()
	return session
}

// Persistence returns the fixture as a persistence.Session value.
func (f SessionFixture) Persistence() persistence.Session {
	session := persistence.Session{
		ID:                         f.ID,
		OrganizerID:                f.OrganizerID,
		Title:                      f.Title,
		Status:                     string(f.Status),
		PublishAt:                  copyTimePtr(f.PublishAt),
		GroupSize:                  f.GroupSize,
		MaxParticipants:            f.MaxParticipants,
		MaxGroups:                  f.MaxGroups,
		RequireEmailVerification:   f.RequireEmailVerification,
		NotifyOnConfirmationWindow: f.NotifyOnConfirmationWindow,
		TeamsExclusive:             f.TeamsExclusive,
		TopicsRequireOverlap:       f.TopicsRequireOverlap,
		Teams:                      append([]string(nil), f.Teams...),
		Topics:                     append([]string(nil), f.Topics...),
		CreatedAt:                  f.CreatedAt,
		UpdatedAt:                  f.UpdatedAt,
	}
	for _, round := range f.Rounds {
		session.Rounds = append(session.Rounds, persistence.Round{
			ID:              round.ID,
			Name:            round.Name,
			StartsAt:        round.StartsAt,
			DurationSeconds: int64(round.Duration / time.Second),
			GroupSize:       round.GroupSize,
		})
	}
	for _, point := range f.MeetingPoints {
		session.MeetingPoints = append(session.MeetingPoints, persistence.MeetingPoint{
			ID:       point.ID,
			Name:     point.Name,
			Kind:     string(point.Kind),
			PhotoURL: point.PhotoURL,
			VideoURL: point.VideoURL,
		})
	}
	session.StartsAt, session.EndsAt = f.bounds()
	return session
}

// Input returns the fixture as an application.SessionInput.
func (f SessionFixture) Input() application.SessionInput {
	input := application.SessionInput{
		Title:                      f.Title,
		GroupSize:                  f.GroupSize,
		MaxParticipants:            f.MaxParticipants,
		MaxGroups:                  f.MaxGroups,
		RequireEmailVerification:   f.RequireEmailVerification,
		NotifyOnConfirmationWindow: f.NotifyOnConfirmationWindow,
		TeamsExclusive:             f.TeamsExclusive,
		TopicsRequireOverlap:       f.TopicsRequireOverlap,
		Teams:                      append([]string(nil), f.Teams...),
		Topics:                     append([]string(nil), f.Topics...),
		MeetingPoints:              append([]application.MeetingPoint(nil), f.MeetingPoints...),
	}
	for _, round := range f.Rounds {
		input.Rounds = append(input.Rounds, application.RoundInput{
			ID:        round.ID,
			Name:      round.Name,
			StartsAt:  round.StartsAt,
			Duration:  round.Duration,
			GroupSize: round.GroupSize,
		})
	}
	return input
}

func (f SessionFixture) bounds() (time.Time, time.Time) {
	var start, end time.Time
	for i, round := range f.Rounds {
		roundEnd := round.StartsAt.Add(round.Duration)
		if i == 0 || round.StartsAt.Before(start) {
			start = round.StartsAt
		}
		if i == 0 || roundEnd.After(end) {
			end = roundEnd
		}
	}
	return start, end
}

// ------------------------- Registration fixtures --------------------------

// RegistrationFixture represents a deterministic registration record.
type RegistrationFixture struct {
	SessionID      string
	RoundID        string
	Participant    application.Participant
	Status         lifecycle.Status
	SelectedTeam   string
	SelectedTopics []string
	MatchID        string
	RegisteredAt   time.Time
	ConfirmedAt    *time.Time
}

// RegistrationOption configures the generated registration fixture.
type RegistrationOption func(*RegistrationFixture)

// NewRegistrationFixture returns a registered participant for the first
// round of session.
func NewRegistrationFixture(session SessionFixture, opts ...RegistrationOption) RegistrationFixture {
	idx := atomic.AddUint64(&registrationCounter, 1)
	participant := fmt.Sprintf("participant-%03d", idx)
	fixture := RegistrationFixture{
		SessionID: session.ID,
		RoundID:   session.RoundID(),
		Participant: application.Participant{
			ID:    participant,
			Name:  fmt.Sprintf("Participant %03d", idx),
			Email: participant + "@example.com",
		},
		Status:       lifecycle.StatusRegistered,
		RegisteredAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithParticipantID overrides the participant identity.
func WithParticipantID(id string) RegistrationOption {
	return func(f *RegistrationFixture) {
		f.Participant.ID = id
		f.Participant.Email = id + "@example.com"
	}
}

// WithRegistrationStatus sets the stored status.
func WithRegistrationStatus(status lifecycle.Status) RegistrationOption {
	return func(f *RegistrationFixture) {
		f.Status = status
	}
}

// Confirmed marks the registration confirmed at t.
func Confirmed(t time.Time) RegistrationOption {
	return func(f *RegistrationFixture) {
		at := t
		f.Status = lifecycle.StatusConfirmed
		f.ConfirmedAt = &at
	}
}

// WithSelections sets the team and topics.
func WithSelections(team string, topics ...string) RegistrationOption {
	return func(f *RegistrationFixture) {
		f.SelectedTeam = team
		f.SelectedTopics = append([]string(nil), topics...)
	}
}

// ID returns the deterministic registration id.
func (f RegistrationFixture) ID() string {
	return application.RegistrationID(f.SessionID, f.RoundID, f.Participant.ID)
}

// Principal returns the participant principal owning the registration.
func (f RegistrationFixture) Principal() application.Principal {
	return application.Principal{ParticipantID: f.Participant.ID}
}

// Application returns the fixture as an application.Registration value.
func (f RegistrationFixture) Application() application.Registration {
	return application.Registration{
		ID:               f.ID(),
		SessionID:        f.SessionID,
		RoundID:          f.RoundID,
		Participant:      f.Participant,
		Status:           f.Status,
		SelectedTeam:     f.SelectedTeam,
		SelectedTopics:   append([]string(nil), f.SelectedTopics...),
		MatchID:          f.MatchID,
		RegisteredAt:     f.RegisteredAt,
		ConfirmedAt:      copyTimePtr(f.ConfirmedAt),
		LastStatusUpdate: f.lastUpdate(),
	}
}

// Persistence returns the fixture as a persistence.Registration value.
func (f RegistrationFixture) Persistence() persistence.Registration {
	return persistence.Registration{
		ID:               f.ID(),
		SessionID:        f.SessionID,
		RoundID:          f.RoundID,
		ParticipantID:    f.Participant.ID,
		ParticipantName:  f.Participant.Name,
		ParticipantEmail: f.Participant.Email,
		Status:           string(f.Status),
		SelectedTeam:     f.SelectedTeam,
		SelectedTopics:   append([]string(nil), f.SelectedTopics...),
		MatchID:          f.MatchID,
		RegisteredAt:     f.RegisteredAt,
		ConfirmedAt:      copyTimePtr(f.ConfirmedAt),
		LastStatusUpdate: f.lastUpdate(),
	}
}

func (f RegistrationFixture) lastUpdate() time.Time {
	if f.ConfirmedAt != nil {
		return *f.ConfirmedAt
	}
	return f.RegisteredAt
}

func copyTimePtr(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}
