package application

import (
	"time"

	"github.com/example/networking-rounds/internal/lifecycle"
	"github.com/example/networking-rounds/internal/phase"
)

// Principal identifies the already-authenticated caller of an operation.
// Exactly one of the fields is normally set.
type Principal struct {
	OrganizerID   string
	ParticipantID string
}

// Participant is the identity a registration is made for.
type Participant struct {
	ID    string
	Name  string
	Email string
}

// MeetingPointKind distinguishes physical locations from video calls.
type MeetingPointKind string

const (
	MeetingPointPhysical MeetingPointKind = "physical"
	MeetingPointVirtual  MeetingPointKind = "virtual"
)

// MeetingPoint is a place groups are sent to.
type MeetingPoint struct {
	ID       string
	Name     string
	Kind     MeetingPointKind
	PhotoURL string
	VideoURL string
}

// Round is one timed matching event inside a session.
type Round struct {
	ID        string
	Name      string
	StartsAt  time.Time
	Duration  time.Duration
	GroupSize int
}

// Window returns the timing the phase calculator works on.
func (r Round) Window() phase.Window {
	return phase.Window{Start: r.StartsAt, Duration: r.Duration}
}

// EndsAt returns the instant the round completes.
func (r Round) EndsAt() time.Time {
	return r.StartsAt.Add(r.Duration)
}

// Session is an organizer's event.
type Session struct {
	ID                         string
	OrganizerID                string
	Title                      string
	Status                     phase.SessionStatus
	StartsAt                   time.Time
	EndsAt                     time.Time
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
	Rounds                     []Round
	MeetingPoints              []MeetingPoint
	CreatedAt                  time.Time
	UpdatedAt                  time.Time

	// FinalizedAt is set once the outcomes of every matched round are
	// recorded after the session completed.
	FinalizedAt *time.Time
}

// Round returns the round with the given id.
func (s Session) Round(id string) (Round, bool) {
	for _, round := range s.Rounds {
		if round.ID == id {
			return round, true
		}
	}
	return Round{}, false
}

// GroupSizeFor returns the effective group size of a round.
func (s Session) GroupSizeFor(round Round) int {
	if round.GroupSize > 0 {
		return round.GroupSize
	}
	return s.GroupSize
}

// MeetingPoint returns the meeting point with the given id.
func (s Session) MeetingPoint(id string) (MeetingPoint, bool) {
	for _, point := range s.MeetingPoints {
		if point.ID == id {
			return point, true
		}
	}
	return MeetingPoint{}, false
}

// Registration is a participant's enrolment in one round.
type Registration struct {
	ID               string
	SessionID        string
	RoundID          string
	Participant      Participant
	Status           lifecycle.Status
	SelectedTeam     string
	SelectedTopics   []string
	MatchID          string
	NoMatchReason    string
	VerificationHash string
	RegisteredAt     time.Time
	VerifiedAt       *time.Time
	ConfirmedAt      *time.Time
	MatchedAt        *time.Time
	CheckedInAt      *time.Time
	MetAt            *time.Time
	CancelledAt      *time.Time
	LastStatusUpdate time.Time
}

// Match is a group of participants sent to one meeting point.
type Match struct {
	ID             string
	SessionID      string
	RoundID        string
	Instant        time.Time
	Members        []MatchMember
	MeetingPointID string
	Topic          string
	CreatedAt      time.Time
}

// Member returns the member entry of participantID.
func (m Match) Member(participantID string) (MatchMember, bool) {
	for _, member := range m.Members {
		if member.ParticipantID == participantID {
			return member, true
		}
	}
	return MatchMember{}, false
}

// MatchMember is the bookkeeping kept for a participant inside a match.
type MatchMember struct {
	ParticipantID  string
	RegistrationID string
	Status         lifecycle.Status
	CheckedInAt    *time.Time
}

// present reports whether the member showed up at the meeting point.
func (m MatchMember) present() bool {
	return m.CheckedInAt != nil || m.Status == lifecycle.StatusCheckedIn || m.Status == lifecycle.StatusMet
}

// MatchPlan is the committed result of a matching run for one round instant.
type MatchPlan struct {
	SessionID          string
	RoundID            string
	Instant            time.Time
	Groups             []PlannedGroup
	Leftovers          []PlannedLeftover
	CreatedAt          time.Time
	OutcomesRecordedAt *time.Time
}

// PlannedGroup is a match the plan will materialize.
type PlannedGroup struct {
	MatchID        string
	Members        []PlannedMember
	MeetingPointID string
	Topic          string
}

// PlannedMember references a placed registration.
type PlannedMember struct {
	RegistrationID string
	ParticipantID  string
}

// PlannedLeftover references a confirmed registration that was not placed.
type PlannedLeftover struct {
	RegistrationID string
	ParticipantID  string
	Reason         string
}

// includes reports whether registrationID is part of the plan.
func (p MatchPlan) includes(registrationID string) bool {
	for _, group := range p.Groups {
		for _, member := range group.Members {
			if member.RegistrationID == registrationID {
				return true
			}
		}
	}
	for _, leftover := range p.Leftovers {
		if leftover.RegistrationID == registrationID {
			return true
		}
	}
	return false
}

// RoundPhase is the answer of a phase query.
type RoundPhase struct {
	SessionID string
	RoundID   string
	Phase     phase.Phase
	At        time.Time
}

// SessionInput carries organizer supplied session fields.
type SessionInput struct {
	Title                      string
	GroupSize                  int
	MaxParticipants            int
	MaxGroups                  int
	RequireEmailVerification   bool
	NotifyOnConfirmationWindow bool
	TeamsExclusive             bool
	TopicsRequireOverlap       bool
	Teams                      []string
	Topics                     []string
	Rounds                     []RoundInput
	MeetingPoints              []MeetingPoint
}

// RoundInput carries organizer supplied round fields. An empty ID gets a
// generated one.
type RoundInput struct {
	ID        string
	Name      string
	StartsAt  time.Time
	Duration  time.Duration
	GroupSize int
}

// CreateSessionParams wraps CreateSession arguments.
type CreateSessionParams struct {
	Principal Principal
	Input     SessionInput
}

// UpdateSessionParams wraps UpdateSession arguments.
type UpdateSessionParams struct {
	Principal Principal
	SessionID string
	Input     SessionInput
}

// RegisterParams wraps RegisterParticipant arguments.
type RegisterParams struct {
	SessionID      string
	RoundIDs       []string
	Participant    Participant
	SelectedTeam   string
	SelectedTopics []string
}

// RegisterResult reports the outcome of RegisterParticipant.
type RegisterResult struct {
	Status        lifecycle.Status
	Registrations []Registration
}
