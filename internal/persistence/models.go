package persistence

import "time"

// Session is the stored form of an organizer's event, including its rounds
// and meeting points. The whole definition lives under one key so an edit is
// a single atomic write.
type Session struct {
	ID                         string         `cbor:"id"`
	OrganizerID                string         `cbor:"organizer_id"`
	Title                      string         `cbor:"title"`
	Status                     string         `cbor:"status"`
	StartsAt                   time.Time      `cbor:"starts_at"`
	EndsAt                     time.Time      `cbor:"ends_at"`
	PublishAt                  *time.Time     `cbor:"publish_at,omitempty"`
	GroupSize                  int            `cbor:"group_size"`
	MaxParticipants            int            `cbor:"max_participants,omitempty"`
	MaxGroups                  int            `cbor:"max_groups,omitempty"`
	RequireEmailVerification   bool           `cbor:"require_email_verification,omitempty"`
	NotifyOnConfirmationWindow bool           `cbor:"notify_on_confirmation_window,omitempty"`
	TeamsExclusive             bool           `cbor:"teams_exclusive,omitempty"`
	TopicsRequireOverlap       bool           `cbor:"topics_require_overlap,omitempty"`
	Teams                      []string       `cbor:"teams,omitempty"`
	Topics                     []string       `cbor:"topics,omitempty"`
	Rounds                     []Round        `cbor:"rounds"`
	MeetingPoints              []MeetingPoint `cbor:"meeting_points,omitempty"`
	FinalizedAt                *time.Time     `cbor:"finalized_at,omitempty"`
	CreatedAt                  time.Time      `cbor:"created_at"`
	UpdatedAt                  time.Time      `cbor:"updated_at"`
}

// Round is a timed matching event inside a session.
type Round struct {
	ID              string    `cbor:"id"`
	Name            string    `cbor:"name"`
	StartsAt        time.Time `cbor:"starts_at"`
	DurationSeconds int64     `cbor:"duration_seconds"`
	GroupSize       int       `cbor:"group_size,omitempty"`
}

// MeetingPoint is a physical or virtual place groups are sent to.
type MeetingPoint struct {
	ID       string `cbor:"id"`
	Name     string `cbor:"name"`
	Kind     string `cbor:"kind"`
	PhotoURL string `cbor:"photo_url,omitempty"`
	VideoURL string `cbor:"video_url,omitempty"`
}

// RoundIndex maps a round id back to its session.
type RoundIndex struct {
	RoundID   string `cbor:"round_id"`
	SessionID string `cbor:"session_id"`
}

// Registration is one participant's enrolment in one round.
type Registration struct {
	ID               string     `cbor:"id"`
	SessionID        string     `cbor:"session_id"`
	RoundID          string     `cbor:"round_id"`
	ParticipantID    string     `cbor:"participant_id"`
	ParticipantName  string     `cbor:"participant_name,omitempty"`
	ParticipantEmail string     `cbor:"participant_email,omitempty"`
	Status           string     `cbor:"status"`
	SelectedTeam     string     `cbor:"selected_team,omitempty"`
	SelectedTopics   []string   `cbor:"selected_topics,omitempty"`
	MatchID          string     `cbor:"match_id,omitempty"`
	NoMatchReason    string     `cbor:"no_match_reason,omitempty"`
	VerificationHash string     `cbor:"verification_hash,omitempty"`
	RegisteredAt     time.Time  `cbor:"registered_at"`
	VerifiedAt       *time.Time `cbor:"verified_at,omitempty"`
	ConfirmedAt      *time.Time `cbor:"confirmed_at,omitempty"`
	MatchedAt        *time.Time `cbor:"matched_at,omitempty"`
	CheckedInAt      *time.Time `cbor:"checked_in_at,omitempty"`
	MetAt            *time.Time `cbor:"met_at,omitempty"`
	CancelledAt      *time.Time `cbor:"cancelled_at,omitempty"`
	LastStatusUpdate time.Time  `cbor:"last_status_update"`
}

// Match is a group formed for one round.
type Match struct {
	ID             string        `cbor:"id"`
	SessionID      string        `cbor:"session_id"`
	RoundID        string        `cbor:"round_id"`
	Instant        time.Time     `cbor:"instant"`
	Members        []MatchMember `cbor:"members"`
	MeetingPointID string        `cbor:"meeting_point_id,omitempty"`
	Topic          string        `cbor:"topic,omitempty"`
	CreatedAt      time.Time     `cbor:"created_at"`
}

// MatchMember is the per-participant bookkeeping inside a match.
type MatchMember struct {
	ParticipantID  string     `cbor:"participant_id"`
	RegistrationID string     `cbor:"registration_id"`
	Status         string     `cbor:"status"`
	CheckedInAt    *time.Time `cbor:"checked_in_at,omitempty"`
}

// Plan is the committed outcome of a matching run. It is written before any
// match or registration so a re-entrant run can finish the same plan.
type Plan struct {
	SessionID          string         `cbor:"session_id"`
	RoundID            string         `cbor:"round_id"`
	Instant            time.Time      `cbor:"instant"`
	Groups             []PlanGroup    `cbor:"groups"`
	Leftovers          []PlanLeftover `cbor:"leftovers,omitempty"`
	CreatedAt          time.Time      `cbor:"created_at"`
	OutcomesRecordedAt *time.Time     `cbor:"outcomes_recorded_at,omitempty"`
}

// PlanGroup is a planned match.
type PlanGroup struct {
	MatchID        string      `cbor:"match_id"`
	Members        []PlanEntry `cbor:"members"`
	MeetingPointID string      `cbor:"meeting_point_id,omitempty"`
	Topic          string      `cbor:"topic,omitempty"`
}

// PlanEntry references a placed registration.
type PlanEntry struct {
	RegistrationID string `cbor:"registration_id"`
	ParticipantID  string `cbor:"participant_id"`
}

// PlanLeftover references a registration that could not be placed.
type PlanLeftover struct {
	RegistrationID string `cbor:"registration_id"`
	ParticipantID  string `cbor:"participant_id"`
	Reason         string `cbor:"reason"`
}
