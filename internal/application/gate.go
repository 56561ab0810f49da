package application

import (
	"github.com/example/networking-rounds/internal/lifecycle"
	"github.com/example/networking-rounds/internal/phase"
)

// Action is a participant request the gate decides on.
type Action string

const (
	ActionRegister    Action = "register"
	ActionVerifyEmail Action = "verify-email"
	ActionCancel      Action = "cancel"
	ActionConfirm     Action = "confirm"
	ActionCheckIn     Action = "check-in"
	ActionPartnerMet  Action = "confirm-partner-met"
)

// Admit decides whether action may run while the round is in phase p and the
// registration holds status. It returns a *WindowClosedError when the
// request arrived outside its window, nil otherwise. Whether the transition
// itself is legal is decided afterwards by the state machine.
func Admit(action Action, roundID string, p phase.Phase, status lifecycle.Status) error {
	switch action {
	case ActionRegister:
		if p != phase.OpenForRegistration {
			return windowClosed(ErrRegistrationClosed, roundID, p)
		}
	case ActionVerifyEmail:
		// In-flight registrations may still complete during the safety window.
		if p.AtOrAfter(phase.WaitingForConfirmation) || p.Before(phase.OpenForRegistration) {
			return windowClosed(ErrRegistrationClosed, roundID, p)
		}
	case ActionCancel:
		rank, ranked := lifecycle.Rank(status)
		matchedRank, _ := lifecycle.Rank(lifecycle.StatusMatched)
		if ranked && rank >= matchedRank {
			return windowClosed(ErrTooLateToCancel, roundID, p)
		}
		if status == lifecycle.StatusConfirmed && p.AtOrAfter(phase.Matching) {
			return windowClosed(ErrTooLateToCancel, roundID, p)
		}
	case ActionConfirm:
		if status.ReachedConfirmed() {
			return nil
		}
		if p.Before(phase.WaitingForConfirmation) || p.AtOrAfter(phase.WalkingToMeetingPoint) {
			return windowClosed(ErrConfirmationClosed, roundID, p)
		}
	case ActionCheckIn, ActionPartnerMet:
		if p.Before(phase.Matching) || p.AtOrAfter(phase.Completed) {
			return windowClosed(ErrCheckInClosed, roundID, p)
		}
	}
	return nil
}
