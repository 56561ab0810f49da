package lifecycle

import "fmt"

// Condition selects between transitions sharing a (From, Event) pair.
type Condition int

const (
	// Always applies unconditionally.
	Always Condition = iota
	// NeedsVerification applies when the session requires email verification.
	NeedsVerification
	// NoVerification applies when registration is immediately effective.
	NoVerification
	// Assigned applies when the matching engine placed the participant.
	Assigned
	// Unassigned applies when the participant could not be placed.
	Unassigned
	// PartnerPresent applies when another match member checked in.
	PartnerPresent
	// PartnerAbsent applies when no other match member checked in.
	PartnerAbsent
	// Verified applies when the registration owes no email verification.
	Verified
)

// Transition is a single allowed edge of the registration state machine.
type Transition struct {
	From  Status
	Event Event
	When  Condition
	To    Status
}

var transitionsTable = []Transition{
	// Registration
	{From: StatusNone, Event: EventRegister, When: NeedsVerification, To: StatusPendingVerification},
	{From: StatusNone, Event: EventRegister, When: NoVerification, To: StatusRegistered},
	{From: StatusCancelled, Event: EventRegister, When: NeedsVerification, To: StatusPendingVerification},
	{From: StatusCancelled, Event: EventRegister, When: NoVerification, To: StatusRegistered},
	{From: StatusPendingVerification, Event: EventVerifyEmail, To: StatusRegistered},

	// Withdrawal
	{From: StatusPendingVerification, Event: EventCancel, To: StatusCancelled},
	{From: StatusRegistered, Event: EventCancel, To: StatusCancelled},
	{From: StatusWaitingForConfirmation, Event: EventCancel, To: StatusCancelled},
	{From: StatusConfirmed, Event: EventCancel, To: StatusCancelled},
	{From: StatusUnconfirmed, Event: EventCancel, To: StatusCancelled},

	// Confirmation window
	{From: StatusRegistered, Event: EventEnterConfirmationWindow, To: StatusWaitingForConfirmation},
	{From: StatusRegistered, Event: EventConfirm, To: StatusConfirmed},
	{From: StatusWaitingForConfirmation, Event: EventConfirm, To: StatusConfirmed},
	{From: StatusUnconfirmed, Event: EventConfirm, When: Verified, To: StatusConfirmed},
	{From: StatusPendingVerification, Event: EventAutoUnconfirm, To: StatusUnconfirmed},
	{From: StatusRegistered, Event: EventAutoUnconfirm, To: StatusUnconfirmed},
	{From: StatusWaitingForConfirmation, Event: EventAutoUnconfirm, To: StatusUnconfirmed},

	// Matching
	{From: StatusConfirmed, Event: EventEnterMatching, When: Assigned, To: StatusMatched},
	{From: StatusConfirmed, Event: EventEnterMatching, When: Unassigned, To: StatusNoMatch},

	// Outcomes
	{From: StatusMatched, Event: EventCheckIn, To: StatusCheckedIn},
	{From: StatusMatched, Event: EventConfirmPartnerMet, To: StatusMet},
	{From: StatusCheckedIn, Event: EventConfirmPartnerMet, To: StatusMet},
	{From: StatusMatched, Event: EventRoundEndsWithoutCheckIn, To: StatusMissed},
	{From: StatusCheckedIn, Event: EventRoundEndsWithoutCheckIn, When: PartnerPresent, To: StatusMet},
	{From: StatusCheckedIn, Event: EventRoundEndsWithoutCheckIn, When: PartnerAbsent, To: StatusLeftAlone},
}

// satisfied lists, per event, the statuses for which the event has already
// taken effect. Applying the event there is a successful no-op; this is what
// lets the driver and a participant race for the same transition safely.
var satisfied = map[Event][]Status{
	EventRegister: {
		StatusPendingVerification, StatusRegistered, StatusWaitingForConfirmation, StatusConfirmed,
		StatusUnconfirmed, StatusMatched, StatusCheckedIn, StatusMet, StatusMissed, StatusLeftAlone, StatusNoMatch,
	},
	EventVerifyEmail: {
		StatusRegistered, StatusWaitingForConfirmation, StatusConfirmed, StatusUnconfirmed,
		StatusMatched, StatusCheckedIn, StatusMet, StatusMissed, StatusLeftAlone, StatusNoMatch,
	},
	EventCancel: {StatusCancelled},
	EventEnterConfirmationWindow: {
		StatusPendingVerification, StatusWaitingForConfirmation, StatusConfirmed, StatusUnconfirmed, StatusCancelled,
		StatusMatched, StatusCheckedIn, StatusMet, StatusMissed, StatusLeftAlone, StatusNoMatch,
	},
	EventConfirm: {
		StatusConfirmed, StatusMatched, StatusCheckedIn, StatusMet, StatusMissed, StatusLeftAlone, StatusNoMatch,
	},
	EventAutoUnconfirm: {
		StatusUnconfirmed, StatusConfirmed, StatusCancelled,
		StatusMatched, StatusCheckedIn, StatusMet, StatusMissed, StatusLeftAlone, StatusNoMatch,
	},
	EventEnterMatching: {
		StatusUnconfirmed, StatusCancelled,
		StatusMatched, StatusCheckedIn, StatusMet, StatusMissed, StatusLeftAlone, StatusNoMatch,
	},
	EventCheckIn:           {StatusCheckedIn, StatusMet},
	EventConfirmPartnerMet: {StatusMet},
	EventRoundEndsWithoutCheckIn: {
		StatusUnconfirmed, StatusCancelled, StatusMet, StatusMissed, StatusLeftAlone, StatusNoMatch,
	},
}

// Input carries an event plus the facts that select a conditional target.
type Input struct {
	Event                Event
	RequiresVerification bool
	Assigned             bool
	PartnerCheckedIn     bool

	// Unverified marks a registration whose email was never verified. An
	// unconfirmed registration reached from pending-verification cannot be
	// confirmed.
	Unverified bool
}

// Outcome is the result of evaluating an event against a status.
type Outcome struct {
	From    Status
	To      Status
	Event   Event
	Changed bool
}

// Reason classifies a rejected transition.
type Reason string

const (
	ReasonIllegal         Reason = "illegal-transition"
	ReasonTooLateToCancel Reason = "too-late-to-cancel"
	ReasonNotVerified     Reason = "not-verified"
	ReasonNotRegistered   Reason = "not-registered"
	ReasonBackward        Reason = "backward-transition"
)

// RejectedError reports that an event is not legal from the current status.
type RejectedError struct {
	From   Status
	Event  Event
	Reason Reason
}

// Error implements the error interface.
func (e *RejectedError) Error() string {
	if e == nil {
		return ""
	}
	from := string(e.From)
	if from == "" {
		from = "none"
	}
	return fmt.Sprintf("lifecycle: %s not allowed from %s (%s)", e.Event, from, e.Reason)
}

// Next evaluates in against current. It never mutates anything; callers
// persist Outcome.To only when Outcome.Changed is set.
func Next(current Status, in Input) (Outcome, error) {
	if isSatisfied(current, in.Event) {
		return Outcome{From: current, To: current, Event: in.Event}, nil
	}

	want := conditionFor(current, in)
	for _, tr := range transitionsTable {
		if tr.From != current || tr.Event != in.Event {
			continue
		}
		if tr.When != Always && tr.When != want {
			continue
		}
		if err := guardProgress(current, tr.To, in.Event); err != nil {
			return Outcome{}, err
		}
		return Outcome{From: current, To: tr.To, Event: in.Event, Changed: true}, nil
	}

	return Outcome{}, &RejectedError{From: current, Event: in.Event, Reason: rejectionReason(current, in)}
}

// TransitionFor returns the table edge matching the arguments, if any.
func TransitionFor(from Status, ev Event, when Condition) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev && tr.When == when {
			return tr, true
		}
	}
	return Transition{}, false
}

// Transitions returns a copy of the transition table.
func Transitions() []Transition {
	out := make([]Transition, len(transitionsTable))
	copy(out, transitionsTable)
	return out
}

func isSatisfied(current Status, ev Event) bool {
	for _, s := range satisfied[ev] {
		if s == current {
			return true
		}
	}
	return false
}

func conditionFor(current Status, in Input) Condition {
	switch in.Event {
	case EventRegister:
		if in.RequiresVerification {
			return NeedsVerification
		}
		return NoVerification
	case EventConfirm:
		if in.Unverified {
			return Always
		}
		return Verified
	case EventEnterMatching:
		if in.Assigned {
			return Assigned
		}
		return Unassigned
	case EventRoundEndsWithoutCheckIn:
		if current != StatusCheckedIn {
			return Always
		}
		if in.PartnerCheckedIn {
			return PartnerPresent
		}
		return PartnerAbsent
	}
	return Always
}

// guardProgress rejects any edge that would lower the progress rank of a
// registration that already reached confirmed. Cancel is the only exception.
func guardProgress(from, to Status, ev Event) error {
	if ev == EventCancel || !from.ReachedConfirmed() {
		return nil
	}
	fromRank, _ := Rank(from)
	toRank, ok := Rank(to)
	if !ok || toRank < fromRank {
		return &RejectedError{From: from, Event: ev, Reason: ReasonBackward}
	}
	return nil
}

func rejectionReason(current Status, in Input) Reason {
	ev := in.Event
	switch {
	case ev == EventCancel && current.ReachedConfirmed():
		return ReasonTooLateToCancel
	case ev == EventConfirm && (current == StatusPendingVerification || in.Unverified):
		return ReasonNotVerified
	case current == StatusNone || current == StatusCancelled:
		return ReasonNotRegistered
	}
	return ReasonIllegal
}
