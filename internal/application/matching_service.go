package application

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/example/networking-rounds/internal/lifecycle"
	"github.com/example/networking-rounds/internal/matching"
	"github.com/example/networking-rounds/internal/phase"
)

// MatchingService turns a round's confirmed registrations into matches.
//
// A run first commits a plan record keyed by round and start instant, then
// materializes matches and registration transitions from it. A run that
// finds a committed plan reuses it, so repeated triggers from the driver
// finish an interrupted run instead of shuffling again.
type MatchingService struct {
	registrations RegistrationRepository
	matches       MatchRepository
	notifier      Notifier
	transitions   *transitioner
	idGenerator   func() string
	newRand       func() *rand.Rand
	now           func() time.Time
	logger        *slog.Logger
}

// NewMatchingService constructs a matching service. newRand may be nil to
// use the global random source.
func NewMatchingService(registrations RegistrationRepository, matches MatchRepository, notifier Notifier, idGenerator func() string, newRand func() *rand.Rand, now func() time.Time, logger *slog.Logger) *MatchingService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if newRand == nil {
		newRand = func() *rand.Rand { return nil }
	}
	if now == nil {
		now = time.Now
	}
	return &MatchingService{
		registrations: registrations,
		matches:       matches,
		notifier:      defaultNotifier(notifier),
		transitions:   &transitioner{registrations: registrations, matches: matches, now: now},
		idGenerator:   idGenerator,
		newRand:       newRand,
		now:           now,
		logger:        defaultLogger(logger),
	}
}

func (s *MatchingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "MatchingService", operation, attrs...)
}

// RunMatching matches a round. It is safe to call any number of times for
// the same round instant.
func (s *MatchingService) RunMatching(ctx context.Context, session Session, round Round) (plan MatchPlan, err error) {
	if s == nil {
		err = fmt.Errorf("MatchingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "RunMatching", "session_id", session.ID, "round_id", round.ID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "matching failed", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	plan, err = s.matches.GetPlan(ctx, session.ID, round.ID, round.StartsAt)
	switch {
	case err == nil:
		logger.DebugContext(ctx, "reusing committed plan", "groups", len(plan.Groups))
	case isNotFound(err):
		plan, err = s.commitPlan(ctx, session, round)
		if err != nil {
			return
		}
		logger.InfoContext(ctx, "matching plan committed",
			"groups", len(plan.Groups),
			"leftovers", len(plan.Leftovers),
		)
	default:
		err = mapRepoError("load plan", err)
		return
	}

	err = s.materialize(ctx, logger, session, round, plan)
	return
}

// commitPlan partitions the confirmed registrations and writes the plan.
// Nothing else is written before the plan, so a failure here leaves every
// registration in its pre-matching status.
func (s *MatchingService) commitPlan(ctx context.Context, session Session, round Round) (MatchPlan, error) {
	registrations, err := s.registrations.ListRegistrationsForRound(ctx, session.ID, round.ID)
	if err != nil {
		return MatchPlan{}, mapRepoError("list registrations", err)
	}

	candidates := make([]matching.Candidate, 0, len(registrations))
	for _, r := range registrations {
		if r.Status != lifecycle.StatusConfirmed || r.SessionID != session.ID {
			continue
		}
		candidates = append(candidates, matching.Candidate{
			ParticipantID:  r.Participant.ID,
			RegistrationID: r.ID,
			Team:           r.SelectedTeam,
			Topics:         r.SelectedTopics,
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].RegistrationID < candidates[j].RegistrationID
	})

	points := make([]matching.MeetingPoint, 0, len(session.MeetingPoints))
	for _, point := range session.MeetingPoints {
		points = append(points, matching.MeetingPoint{
			ID:      point.ID,
			Name:    point.Name,
			Virtual: point.Kind == MeetingPointVirtual,
		})
	}

	result, err := matching.Partition(candidates, matching.Options{
		GroupSize:            session.GroupSizeFor(round),
		MaxGroups:            session.MaxGroups,
		MaxParticipants:      session.MaxParticipants,
		TeamsExclusive:       session.TeamsExclusive,
		TopicsRequireOverlap: session.TopicsRequireOverlap,
		MeetingPoints:        points,
		Rand:                 s.newRand(),
	})
	if err != nil {
		return MatchPlan{}, err
	}

	plan := MatchPlan{
		SessionID: session.ID,
		RoundID:   round.ID,
		Instant:   round.StartsAt,
		CreatedAt: s.now(),
	}
	for _, group := range result.Groups {
		planned := PlannedGroup{MatchID: s.idGenerator(), Topic: group.Topic}
		if group.MeetingPoint != nil {
			planned.MeetingPointID = group.MeetingPoint.ID
		}
		for _, member := range group.Members {
			planned.Members = append(planned.Members, PlannedMember{
				RegistrationID: member.RegistrationID,
				ParticipantID:  member.ParticipantID,
			})
		}
		plan.Groups = append(plan.Groups, planned)
	}
	for _, leftover := range result.Leftovers {
		plan.Leftovers = append(plan.Leftovers, PlannedLeftover{
			RegistrationID: leftover.Candidate.RegistrationID,
			ParticipantID:  leftover.Candidate.ParticipantID,
			Reason:         leftover.Reason,
		})
	}

	// Another run may have committed while this one was partitioning.
	existing, err := s.matches.GetPlan(ctx, session.ID, round.ID, round.StartsAt)
	switch {
	case err == nil:
		return existing, nil
	case !isNotFound(err):
		return MatchPlan{}, mapRepoError("load plan", err)
	}

	if err := s.matches.SavePlan(ctx, plan); err != nil {
		return MatchPlan{}, mapRepoError("save plan", err)
	}
	return plan, nil
}

// materialize writes the matches of a plan and moves every planned
// registration to matched or no-match. Each write is idempotent.
func (s *MatchingService) materialize(ctx context.Context, logger *slog.Logger, session Session, round Round, plan MatchPlan) error {
	p := phase.Matching

	for _, group := range plan.Groups {
		if err := s.ensureMatch(ctx, plan, group); err != nil {
			return err
		}
		meetingPoint, _ := session.MeetingPoint(group.MeetingPointID)
		for _, member := range group.Members {
			matchID := group.MatchID
			registration, outcome, err := s.transitions.advance(ctx, member.RegistrationID, step{
				input:   lifecycle.Input{Event: lifecycle.EventEnterMatching, Assigned: true},
				roundID: round.ID,
				phase:   p,
				edit: func(r *Registration, _ time.Time) {
					r.MatchID = matchID
					r.NoMatchReason = ""
				},
			})
			if err != nil {
				return err
			}
			if outcome.Changed {
				send(ctx, logger, s.notifier, Notification{
					Template:    TemplateMatchAssigned,
					Participant: registration.Participant,
					Variables: map[string]any{
						"session_title": session.Title,
						"round_name":    round.Name,
						"round_start":   round.StartsAt,
						"meeting_point": meetingPoint.Name,
						"video_url":     meetingPoint.VideoURL,
						"group_size":    len(group.Members),
						"topic":         group.Topic,
					},
				})
			}
		}
	}

	for _, leftover := range plan.Leftovers {
		if err := s.markNoMatch(ctx, logger, session, round, leftover.RegistrationID, leftover.Reason); err != nil {
			return err
		}
	}

	// Confirmations that landed after the plan was committed.
	registrations, err := s.registrations.ListRegistrationsForRound(ctx, session.ID, round.ID)
	if err != nil {
		return mapRepoError("list registrations", err)
	}
	for _, r := range registrations {
		if r.Status != lifecycle.StatusConfirmed || plan.includes(r.ID) {
			continue
		}
		if err := s.markNoMatch(ctx, logger, session, round, r.ID, ReasonConfirmedAfterMatching); err != nil {
			return err
		}
	}
	return nil
}

func (s *MatchingService) ensureMatch(ctx context.Context, plan MatchPlan, group PlannedGroup) error {
	_, err := s.matches.GetMatch(ctx, group.MatchID)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return mapRepoError("load match", err)
	}

	match := Match{
		ID:             group.MatchID,
		SessionID:      plan.SessionID,
		RoundID:        plan.RoundID,
		Instant:        plan.Instant,
		MeetingPointID: group.MeetingPointID,
		Topic:          group.Topic,
		CreatedAt:      s.now(),
	}
	for _, member := range group.Members {
		match.Members = append(match.Members, MatchMember{
			ParticipantID:  member.ParticipantID,
			RegistrationID: member.RegistrationID,
			Status:         lifecycle.StatusMatched,
		})
	}
	if err := s.matches.SaveMatch(ctx, match); err != nil {
		return mapRepoError("save match", err)
	}
	return nil
}

func (s *MatchingService) markNoMatch(ctx context.Context, logger *slog.Logger, session Session, round Round, registrationID, reason string) error {
	registration, outcome, err := s.transitions.advance(ctx, registrationID, step{
		input:   lifecycle.Input{Event: lifecycle.EventEnterMatching, Assigned: false},
		roundID: round.ID,
		phase:   phase.Matching,
		edit: func(r *Registration, _ time.Time) {
			r.NoMatchReason = reason
		},
	})
	if err != nil {
		return err
	}
	if outcome.Changed {
		send(ctx, logger, s.notifier, Notification{
			Template:    TemplateNoMatch,
			Participant: registration.Participant,
			Variables: map[string]any{
				"session_title": session.Title,
				"round_name":    round.Name,
				"round_start":   round.StartsAt,
				"reason":        reason,
			},
		})
	}
	return nil
}
