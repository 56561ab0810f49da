package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/networking-rounds/internal/lifecycle"
	"github.com/example/networking-rounds/internal/phase"
)

// OutcomeService records what happened after matching: check-ins, partner
// confirmations and the terminal outcome of every matched participant.
type OutcomeService struct {
	sessions    SessionSource
	matches     MatchRepository
	params      phase.Parameters
	transitions *transitioner
	now         func() time.Time
	logger      *slog.Logger
}

// NewOutcomeService constructs an outcome service.
func NewOutcomeService(sessions SessionSource, registrations RegistrationRepository, matches MatchRepository, params phase.Parameters, now func() time.Time, logger *slog.Logger) *OutcomeService {
	if now == nil {
		now = time.Now
	}
	return &OutcomeService{
		sessions:    sessions,
		matches:     matches,
		params:      params,
		transitions: &transitioner{registrations: registrations, matches: matches, now: now},
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *OutcomeService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "OutcomeService", operation, attrs...)
}

// CheckIn records that a participant arrived at the match's meeting point.
func (s *OutcomeService) CheckIn(ctx context.Context, principal Principal, matchID string) (Registration, error) {
	return s.record(ctx, "CheckIn", principal, matchID, ActionCheckIn, lifecycle.EventCheckIn)
}

// ConfirmPartnerMet records that a participant met their group.
func (s *OutcomeService) ConfirmPartnerMet(ctx context.Context, principal Principal, matchID string) (Registration, error) {
	return s.record(ctx, "ConfirmPartnerMet", principal, matchID, ActionPartnerMet, lifecycle.EventConfirmPartnerMet)
}

func (s *OutcomeService) record(ctx context.Context, operation string, principal Principal, matchID string, action Action, event lifecycle.Event) (registration Registration, err error) {
	if s == nil {
		err = fmt.Errorf("OutcomeService is nil")
		return
	}

	logger := s.loggerWith(ctx, operation, "match_id", matchID, "participant_id", principal.ParticipantID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to record outcome", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("status", string(registration.Status)).InfoContext(ctx, "outcome recorded")
	}()

	if principal.ParticipantID == "" {
		err = ErrUnauthorized
		return
	}

	var match Match
	match, err = s.matches.GetMatch(ctx, matchID)
	if err != nil {
		err = mapRepoError("load match", err)
		return
	}
	member, ok := match.Member(principal.ParticipantID)
	if !ok {
		err = ErrUnauthorized
		return
	}

	var (
		session Session
		round   Round
	)
	session, round, err = roundOf(ctx, s.sessions, match.SessionID, match.RoundID)
	if err != nil {
		return
	}
	p := phase.Compute(session.Status, round.Window(), s.params, s.now())
	if err = Admit(action, round.ID, p, member.Status); err != nil {
		return
	}

	registration, _, err = s.transitions.advance(ctx, member.RegistrationID, step{
		input:   lifecycle.Input{Event: event},
		roundID: round.ID,
		phase:   p,
	})
	return
}

// RecordRoundOutcomes resolves the terminal outcome of every member of every
// match of the round: met when someone else in the group showed up,
// left-alone when only they did, missed when they never checked in. It is
// idempotent and marks the plan once every member is resolved.
func (s *OutcomeService) RecordRoundOutcomes(ctx context.Context, session Session, round Round) (err error) {
	if s == nil {
		return fmt.Errorf("OutcomeService is nil")
	}

	logger := s.loggerWith(ctx, "RecordRoundOutcomes", "session_id", session.ID, "round_id", round.ID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to record round outcomes", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	var plan MatchPlan
	plan, err = s.matches.GetPlan(ctx, session.ID, round.ID, round.StartsAt)
	if err != nil {
		err = mapRepoError("load plan", err)
		return
	}
	if plan.OutcomesRecordedAt != nil {
		return nil
	}

	resolved := 0
	for _, group := range plan.Groups {
		var match Match
		match, err = s.matches.GetMatch(ctx, group.MatchID)
		if err != nil {
			err = mapRepoError("load match", err)
			return
		}

		for _, member := range match.Members {
			_, outcome, advanceErr := s.transitions.advance(ctx, member.RegistrationID, step{
				input: lifecycle.Input{
					Event:            lifecycle.EventRoundEndsWithoutCheckIn,
					PartnerCheckedIn: partnerPresent(match, member.ParticipantID),
				},
				roundID: round.ID,
				phase:   phase.Completed,
			})
			if advanceErr != nil {
				err = advanceErr
				return
			}
			if outcome.Changed {
				resolved++
			}
		}
	}

	recordedAt := s.now()
	plan.OutcomesRecordedAt = &recordedAt
	if err = s.matches.SavePlan(ctx, plan); err != nil {
		err = mapRepoError("save plan", err)
		return
	}
	logger.InfoContext(ctx, "round outcomes recorded", "resolved", resolved)
	return nil
}

// outcomesRecorded reports whether RecordRoundOutcomes already finished
// for the round.
func (s *OutcomeService) outcomesRecorded(ctx context.Context, session Session, round Round) (bool, error) {
	_, recorded, err := s.planState(ctx, session, round)
	return recorded, err
}

// planState reports whether the round has a committed plan and whether its
// outcomes are recorded.
func (s *OutcomeService) planState(ctx context.Context, session Session, round Round) (matched, recorded bool, err error) {
	plan, err := s.matches.GetPlan(ctx, session.ID, round.ID, round.StartsAt)
	if isNotFound(err) {
		return false, false, nil
	}
	if err != nil {
		return false, false, mapRepoError("load plan", err)
	}
	return true, plan.OutcomesRecordedAt != nil, nil
}

// partnerPresent reports whether any member other than participantID
// checked in.
func partnerPresent(match Match, participantID string) bool {
	for _, member := range match.Members {
		if member.ParticipantID != participantID && member.present() {
			return true
		}
	}
	return false
}
