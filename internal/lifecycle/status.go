package lifecycle

// Status is a participant's registration status for one round.
type Status string

const (
	StatusNone                   Status = ""
	StatusPendingVerification    Status = "pending-verification"
	StatusRegistered             Status = "registered"
	StatusWaitingForConfirmation Status = "waiting-for-confirmation"
	StatusConfirmed              Status = "confirmed"
	StatusUnconfirmed            Status = "unconfirmed"
	StatusCancelled              Status = "cancelled"
	StatusMatched                Status = "matched"
	StatusCheckedIn              Status = "checked-in"
	StatusMet                    Status = "met"
	StatusMissed                 Status = "missed"
	StatusLeftAlone              Status = "left-alone"
	StatusNoMatch                Status = "no-match"
)

// progress ranks statuses along the happy path. Cancelled is a side exit and
// carries no rank; see Rank.
var progress = map[Status]int{
	StatusNone:                   0,
	StatusPendingVerification:    1,
	StatusRegistered:             2,
	StatusWaitingForConfirmation: 3,
	StatusUnconfirmed:            4,
	StatusConfirmed:              5,
	StatusMatched:                6,
	StatusNoMatch:                6,
	StatusCheckedIn:              7,
	StatusMet:                    8,
	StatusMissed:                 8,
	StatusLeftAlone:              8,
}

// Rank returns the progress rank of s. The second result is false for
// cancelled and unknown statuses.
func Rank(s Status) (int, bool) {
	rank, ok := progress[s]
	return rank, ok
}

// Valid reports whether s is a known, non-empty status.
func (s Status) Valid() bool {
	if s == StatusCancelled {
		return true
	}
	_, ok := progress[s]
	return ok && s != StatusNone
}

// Terminal reports whether no further event other than a no-op applies.
func (s Status) Terminal() bool {
	switch s {
	case StatusMet, StatusMissed, StatusLeftAlone, StatusNoMatch:
		return true
	}
	return false
}

// ReachedConfirmed reports whether s is confirmed or any later status on the
// happy path.
func (s Status) ReachedConfirmed() bool {
	rank, ok := progress[s]
	return ok && rank >= progress[StatusConfirmed]
}

// InMatch reports whether a registration with this status is referenced by a
// Match.
func (s Status) InMatch() bool {
	switch s {
	case StatusMatched, StatusCheckedIn, StatusMet, StatusMissed, StatusLeftAlone:
		return true
	}
	return false
}

// Event names a registration lifecycle event.
type Event string

const (
	EventRegister                Event = "register"
	EventVerifyEmail             Event = "verify-email"
	EventCancel                  Event = "cancel"
	EventEnterConfirmationWindow Event = "enter-confirmation-window"
	EventConfirm                 Event = "confirm"
	EventAutoUnconfirm           Event = "auto-unconfirm"
	EventEnterMatching           Event = "enter-matching"
	EventCheckIn                 Event = "check-in"
	EventConfirmPartnerMet       Event = "confirm-partner-met"
	EventRoundEndsWithoutCheckIn Event = "round-ends-without-check-in"
)

// Automatic reports whether the event is raised by the periodic driver rather
// than by a participant or organizer.
func (e Event) Automatic() bool {
	switch e {
	case EventEnterConfirmationWindow, EventAutoUnconfirm, EventEnterMatching, EventRoundEndsWithoutCheckIn:
		return true
	}
	return false
}
