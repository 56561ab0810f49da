package application

import (
	"context"
	"errors"
	"time"

	"github.com/example/networking-rounds/internal/lifecycle"
	"github.com/example/networking-rounds/internal/phase"
)

// transitioner is the single write path for registration statuses. Each
// call reads the stored registration, evaluates the event against that
// status and writes only when something changes, so two actors racing for
// the same transition both succeed and the later one is a no-op.
type transitioner struct {
	registrations RegistrationRepository
	matches       MatchRepository
	now           func() time.Time
}

// step describes one event applied to one registration.
type step struct {
	input   lifecycle.Input
	roundID string
	phase   phase.Phase
	// edit runs on the new record only when the status changes.
	edit func(r *Registration, at time.Time)
}

// advance loads registrationID and applies s.
func (t *transitioner) advance(ctx context.Context, registrationID string, s step) (Registration, lifecycle.Outcome, error) {
	current, err := t.registrations.GetRegistration(ctx, registrationID)
	if err != nil {
		return Registration{}, lifecycle.Outcome{}, mapRepoError("load registration", err)
	}
	return t.advanceFrom(ctx, current, s)
}

// advanceFrom applies s to a registration the caller has just read.
func (t *transitioner) advanceFrom(ctx context.Context, current Registration, s step) (Registration, lifecycle.Outcome, error) {
	outcome, err := lifecycle.Next(current.Status, s.input)
	if err != nil {
		var rejected *lifecycle.RejectedError
		if errors.As(err, &rejected) {
			return current, outcome, rejection(current.ID, rejected, s.roundID, s.phase)
		}
		return current, outcome, err
	}

	if !outcome.Changed {
		if err := t.mergeIntoMatch(ctx, current); err != nil {
			return current, outcome, err
		}
		return current, outcome, nil
	}

	at := t.now()
	next := current
	next.Status = outcome.To
	stamp(&next, outcome, at)
	if s.edit != nil {
		s.edit(&next, at)
	}

	if err := t.registrations.SaveRegistration(ctx, next); err != nil {
		return current, lifecycle.Outcome{}, mapRepoError("save registration", err)
	}
	if err := t.mergeIntoMatch(ctx, next); err != nil {
		return next, outcome, err
	}
	return next, outcome, nil
}

// stamp records the timestamp of the status reached. Timestamps already set
// are kept so repeating an event never rewrites history.
func stamp(r *Registration, outcome lifecycle.Outcome, at time.Time) {
	r.LastStatusUpdate = at
	set := func(field **time.Time) {
		if *field == nil {
			value := at
			*field = &value
		}
	}

	switch outcome.To {
	case lifecycle.StatusPendingVerification, lifecycle.StatusRegistered:
		if outcome.Event == lifecycle.EventRegister {
			// A fresh start after a cancellation.
			r.RegisteredAt = at
			r.ConfirmedAt = nil
			r.CancelledAt = nil
			r.VerifiedAt = nil
		}
		if outcome.Event == lifecycle.EventVerifyEmail {
			set(&r.VerifiedAt)
		}
	case lifecycle.StatusConfirmed:
		set(&r.ConfirmedAt)
	case lifecycle.StatusMatched:
		set(&r.MatchedAt)
	case lifecycle.StatusCheckedIn:
		set(&r.CheckedInAt)
	case lifecycle.StatusMet:
		set(&r.MetAt)
	case lifecycle.StatusCancelled:
		set(&r.CancelledAt)
	}
}

// mergeIntoMatch copies the registration status into its live match member
// entry. It writes only when the member entry is behind.
func (t *transitioner) mergeIntoMatch(ctx context.Context, r Registration) error {
	if r.MatchID == "" || !r.Status.InMatch() || t.matches == nil {
		return nil
	}

	match, err := t.matches.GetMatch(ctx, r.MatchID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return mapRepoError("load match", err)
	}

	changed := false
	for i := range match.Members {
		member := &match.Members[i]
		if member.RegistrationID != r.ID {
			continue
		}
		if member.Status != r.Status {
			memberRank, _ := lifecycle.Rank(member.Status)
			regRank, _ := lifecycle.Rank(r.Status)
			if regRank >= memberRank {
				member.Status = r.Status
				changed = true
			}
		}
		if member.CheckedInAt == nil && r.CheckedInAt != nil {
			checkedIn := *r.CheckedInAt
			member.CheckedInAt = &checkedIn
			changed = true
		}
	}
	if !changed {
		return nil
	}
	if err := t.matches.SaveMatch(ctx, match); err != nil {
		return mapRepoError("save match", err)
	}
	return nil
}
