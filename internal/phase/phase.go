package phase

import (
	"fmt"
	"time"
)

// Phase is the derived lifecycle state of a round at a given instant. It is
// never persisted.
type Phase int

const (
	Draft Phase = iota
	Scheduled
	OpenForRegistration
	SafetyWindow
	WaitingForConfirmation
	Matching
	WalkingToMeetingPoint
	Networking
	Completed
)

var phaseNames = map[Phase]string{
	Draft:                  "draft",
	Scheduled:              "scheduled",
	OpenForRegistration:    "open-for-registration",
	SafetyWindow:           "safety-window",
	WaitingForConfirmation: "waiting-for-confirmation",
	Matching:               "matching",
	WalkingToMeetingPoint:  "walking-to-meeting-point",
	Networking:             "networking",
	Completed:              "completed",
}

// String returns the wire name of the phase.
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// AtOrAfter reports whether p is at or later than other in the phase order.
func (p Phase) AtOrAfter(other Phase) bool {
	return p >= other
}

// Before reports whether p precedes other in the phase order.
func (p Phase) Before(other Phase) bool {
	return p < other
}

// SessionStatus mirrors the stored status of the session owning a round.
type SessionStatus string

const (
	SessionDraft     SessionStatus = "draft"
	SessionScheduled SessionStatus = "scheduled"
	SessionPublished SessionStatus = "published"
	SessionCompleted SessionStatus = "completed"
)

// Valid reports whether s is a known session status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionDraft, SessionScheduled, SessionPublished, SessionCompleted:
		return true
	}
	return false
}

// Window is the timing of a single round.
type Window struct {
	Start    time.Time
	Duration time.Duration
}

// End returns the instant the round completes.
func (w Window) End() time.Time {
	return w.Start.Add(w.Duration)
}

// Compute maps a session status, a round window, the system parameters and
// an instant to the round's phase. It has no side effects and never fails:
// misconfigured parameters degrade to empty intervals.
func Compute(status SessionStatus, window Window, params Parameters, now time.Time) Phase {
	switch status {
	case SessionDraft:
		return Draft
	case SessionScheduled:
		return Scheduled
	case SessionCompleted:
		return Completed
	}

	start := window.Start
	safetyStart := start.Add(-params.SafetyWindow())
	confirmationStart := start.Add(-params.ConfirmationWindow())

	switch {
	case now.Before(safetyStart):
		return OpenForRegistration
	case now.Before(start) && !now.After(confirmationStart):
		return SafetyWindow
	case now.Before(start):
		return WaitingForConfirmation
	case now.Equal(start):
		return Matching
	}

	// Past the matching instant. Completion wins over walking so a round
	// shorter than the walking grace still ends on time.
	if !now.Before(window.End()) {
		return Completed
	}
	if !now.After(start.Add(params.WalkingTime())) {
		return WalkingToMeetingPoint
	}
	return Networking
}

// Boundaries lists the instants at which the phase of a published round can
// change, in chronological order. The driver and tests use it to probe each
// interval without scanning every second.
func Boundaries(window Window, params Parameters) []time.Time {
	start := window.Start
	return []time.Time{
		start.Add(-params.SafetyWindow()),
		start.Add(-params.ConfirmationWindow()),
		start,
		start.Add(params.WalkingTime()),
		window.End(),
	}
}
