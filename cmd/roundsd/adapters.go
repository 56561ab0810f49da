package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/networking-rounds/internal/application"
	"github.com/example/networking-rounds/internal/lifecycle"
	"github.com/example/networking-rounds/internal/persistence"
	"github.com/example/networking-rounds/internal/phase"
)

// repositoryAdapter serves every application repository from the keyed
// store repository.
type repositoryAdapter struct {
	repo *persistence.Repository
}

func newRepositoryAdapter(repo *persistence.Repository) *repositoryAdapter {
	return &repositoryAdapter{repo: repo}
}

func (a *repositoryAdapter) GetSession(ctx context.Context, id string) (application.Session, error) {
	stored, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return application.Session{}, storeError(err)
	}
	return toApplicationSession(stored), nil
}

func (a *repositoryAdapter) SaveSession(ctx context.Context, session application.Session) error {
	return storeError(a.repo.PutSession(ctx, toPersistenceSession(session)))
}

func (a *repositoryAdapter) ListSessions(ctx context.Context) ([]application.Session, error) {
	stored, err := a.repo.ListSessions(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	sessions := make([]application.Session, 0, len(stored))
	for _, session := range stored {
		sessions = append(sessions, toApplicationSession(session))
	}
	return sessions, nil
}

func (a *repositoryAdapter) FindSessionByRound(ctx context.Context, roundID string) (application.Session, error) {
	stored, _, err := a.repo.FindSessionByRound(ctx, roundID)
	if err != nil {
		return application.Session{}, storeError(err)
	}
	return toApplicationSession(stored), nil
}

func (a *repositoryAdapter) GetRegistration(ctx context.Context, id string) (application.Registration, error) {
	stored, err := a.repo.GetRegistration(ctx, id)
	if err != nil {
		return application.Registration{}, storeError(err)
	}
	return toApplicationRegistration(stored), nil
}

func (a *repositoryAdapter) SaveRegistration(ctx context.Context, registration application.Registration) error {
	return storeError(a.repo.PutRegistration(ctx, toPersistenceRegistration(registration)))
}

func (a *repositoryAdapter) ListRegistrationsForRound(ctx context.Context, sessionID, roundID string) ([]application.Registration, error) {
	stored, err := a.repo.ListRegistrationsForRound(ctx, sessionID, roundID)
	if err != nil {
		return nil, storeError(err)
	}
	registrations := make([]application.Registration, 0, len(stored))
	for _, registration := range stored {
		registrations = append(registrations, toApplicationRegistration(registration))
	}
	return registrations, nil
}

func (a *repositoryAdapter) GetMatch(ctx context.Context, id string) (application.Match, error) {
	stored, err := a.repo.GetMatch(ctx, id)
	if err != nil {
		return application.Match{}, storeError(err)
	}
	return toApplicationMatch(stored), nil
}

func (a *repositoryAdapter) SaveMatch(ctx context.Context, match application.Match) error {
	return storeError(a.repo.PutMatch(ctx, toPersistenceMatch(match)))
}

func (a *repositoryAdapter) GetPlan(ctx context.Context, sessionID, roundID string, instant time.Time) (application.MatchPlan, error) {
	stored, err := a.repo.GetPlan(ctx, sessionID, roundID, instant)
	if err != nil {
		return application.MatchPlan{}, storeError(err)
	}
	return toApplicationPlan(stored), nil
}

func (a *repositoryAdapter) SavePlan(ctx context.Context, plan application.MatchPlan) error {
	return storeError(a.repo.PutPlan(ctx, toPersistencePlan(plan)))
}

// storeError translates keyed store errors into the application's sentinels.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return application.ErrNotFound
	case errors.Is(err, persistence.ErrUnavailable):
		return fmt.Errorf("%w: %w", application.ErrStoreUnavailable, err)
	default:
		return err
	}
}

func toApplicationSession(model persistence.Session) application.Session {
	session := application.Session{
		ID:                         model.ID,
		OrganizerID:                model.OrganizerID,
		Title:                      model.Title,
		Status:                     phase.SessionStatus(model.Status),
		StartsAt:                   model.StartsAt,
		EndsAt:                     model.EndsAt,
		PublishAt:                  cloneTime(model.PublishAt),
		FinalizedAt:                cloneTime(model.FinalizedAt),
		GroupSize:                  model.GroupSize,
		MaxParticipants:            model.MaxParticipants,
		MaxGroups:                  model.MaxGroups,
		RequireEmailVerification:   model.RequireEmailVerification,
		NotifyOnConfirmationWindow: model.NotifyOnConfirmationWindow,
		TeamsExclusive:             model.TeamsExclusive,
		TopicsRequireOverlap:       model.TopicsRequireOverlap,
		Teams:                      cloneStrings(model.Teams),
		Topics:                     cloneStrings(model.Topics),
		CreatedAt:                  model.CreatedAt,
		UpdatedAt:                  model.UpdatedAt,
	}
	for _, round := range model.Rounds {
		session.Rounds = append(session.Rounds, application.Round{
			ID:        round.ID,
			Name:      round.Name,
			StartsAt:  round.StartsAt,
			Duration:  time.Duration(round.DurationSeconds) * time.Second,
			GroupSize: round.GroupSize,
		})
	}
	for _, point := range model.MeetingPoints {
		session.MeetingPoints = append(session.MeetingPoints, application.MeetingPoint{
			ID:       point.ID,
			Name:     point.Name,
			Kind:     application.MeetingPointKind(point.Kind),
			PhotoURL: point.PhotoURL,
			VideoURL: point.VideoURL,
		})
	}
	return session
}

func toPersistenceSession(session application.Session) persistence.Session {
	model := persistence.Session{
		ID:                         session.ID,
		OrganizerID:                session.OrganizerID,
		Title:                      session.Title,
		Status:                     string(session.Status),
		StartsAt:                   session.StartsAt,
		EndsAt:                     session.EndsAt,
		PublishAt:                  cloneTime(session.PublishAt),
		FinalizedAt:                cloneTime(session.FinalizedAt),
		GroupSize:                  session.GroupSize,
		MaxParticipants:            session.MaxParticipants,
		MaxGroups:                  session.MaxGroups,
		RequireEmailVerification:   session.RequireEmailVerification,
		NotifyOnConfirmationWindow: session.NotifyOnConfirmationWindow,
		TeamsExclusive:             session.TeamsExclusive,
		TopicsRequireOverlap:       session.TopicsRequireOverlap,
		Teams:                      cloneStrings(session.Teams),
		Topics:                     cloneStrings(session.Topics),
		CreatedAt:                  session.CreatedAt,
		UpdatedAt:                  session.UpdatedAt,
	}
	for _, round := range session.Rounds {
		model.Rounds = append(model.Rounds, persistence.Round{
			ID:              round.ID,
			Name:            round.Name,
			StartsAt:        round.StartsAt,
			DurationSeconds: int64(round.Duration / time.Second),
			GroupSize:       round.GroupSize,
		})
	}
	for _, point := range session.MeetingPoints {
		model.MeetingPoints = append(model.MeetingPoints, persistence.MeetingPoint{
			ID:       point.ID,
			Name:     point.Name,
			Kind:     string(point.Kind),
			PhotoURL: point.PhotoURL,
			VideoURL: point.VideoURL,
		})
	}
	return model
}

func toApplicationRegistration(model persistence.Registration) application.Registration {
	return application.Registration{
		ID:        model.ID,
		SessionID: model.SessionID,
		RoundID:   model.RoundID,
		Participant: application.Participant{
			ID:    model.ParticipantID,
			Name:  model.ParticipantName,
			Email: model.ParticipantEmail,
		},
		Status:           lifecycle.Status(model.Status),
		SelectedTeam:     model.SelectedTeam,
		SelectedTopics:   cloneStrings(model.SelectedTopics),
		MatchID:          model.MatchID,
		NoMatchReason:    model.NoMatchReason,
		VerificationHash: model.VerificationHash,
		RegisteredAt:     model.RegisteredAt,
		VerifiedAt:       cloneTime(model.VerifiedAt),
		ConfirmedAt:      cloneTime(model.ConfirmedAt),
		MatchedAt:        cloneTime(model.MatchedAt),
		CheckedInAt:      cloneTime(model.CheckedInAt),
		MetAt:            cloneTime(model.MetAt),
		CancelledAt:      cloneTime(model.CancelledAt),
		LastStatusUpdate: model.LastStatusUpdate,
	}
}

func toPersistenceRegistration(registration application.Registration) persistence.Registration {
	return persistence.Registration{
		ID:               registration.ID,
		SessionID:        registration.SessionID,
		RoundID:          registration.RoundID,
		ParticipantID:    registration.Participant.ID,
		ParticipantName:  registration.Participant.Name,
		ParticipantEmail: registration.Participant.Email,
		Status:           string(registration.Status),
		SelectedTeam:     registration.SelectedTeam,
		SelectedTopics:   cloneStrings(registration.SelectedTopics),
		MatchID:          registration.MatchID,
		NoMatchReason:    registration.NoMatchReason,
		VerificationHash: registration.VerificationHash,
		RegisteredAt:     registration.RegisteredAt,
		VerifiedAt:       cloneTime(registration.VerifiedAt),
		ConfirmedAt:      cloneTime(registration.ConfirmedAt),
		MatchedAt:        cloneTime(registration.MatchedAt),
		CheckedInAt:      cloneTime(registration.CheckedInAt),
		MetAt:            cloneTime(registration.MetAt),
		CancelledAt:      cloneTime(registration.CancelledAt),
		LastStatusUpdate: registration.LastStatusUpdate,
	}
}

func toApplicationMatch(model persistence.Match) application.Match {
	match := application.Match{
		ID:             model.ID,
		SessionID:      model.SessionID,
		RoundID:        model.RoundID,
		Instant:        model.Instant,
		MeetingPointID: model.MeetingPointID,
		Topic:          model.Topic,
		CreatedAt:      model.CreatedAt,
	}
	for _, member := range model.Members {
		match.Members = append(match.Members, application.MatchMember{
			ParticipantID:  member.ParticipantID,
			RegistrationID: member.RegistrationID,
			Status:         lifecycle.Status(member.Status),
			CheckedInAt:    cloneTime(member.CheckedInAt),
		})
	}
	return match
}

func toPersistenceMatch(match application.Match) persistence.Match {
	model := persistence.Match{
		ID:             match.ID,
		SessionID:      match.SessionID,
		RoundID:        match.RoundID,
		Instant:        match.Instant,
		MeetingPointID: match.MeetingPointID,
		Topic:          match.Topic,
		CreatedAt:      match.CreatedAt,
	}
	for _, member := range match.Members {
		model.Members = append(model.Members, persistence.MatchMember{
			ParticipantID:  member.ParticipantID,
			RegistrationID: member.RegistrationID,
			Status:         string(member.Status),
			CheckedInAt:    cloneTime(member.CheckedInAt),
		})
	}
	return model
}

func toApplicationPlan(model persistence.Plan) application.MatchPlan {
	plan := application.MatchPlan{
		SessionID:          model.SessionID,
		RoundID:            model.RoundID,
		Instant:            model.Instant,
		CreatedAt:          model.CreatedAt,
		OutcomesRecordedAt: cloneTime(model.OutcomesRecordedAt),
	}
	for _, group := range model.Groups {
		planned := application.PlannedGroup{
			MatchID:        group.MatchID,
			MeetingPointID: group.MeetingPointID,
			Topic:          group.Topic,
		}
		for _, entry := range group.Members {
			planned.Members = append(planned.Members, application.PlannedMember{
				RegistrationID: entry.RegistrationID,
				ParticipantID:  entry.ParticipantID,
			})
		}
		plan.Groups = append(plan.Groups, planned)
	}
	for _, leftover := range model.Leftovers {
		plan.Leftovers = append(plan.Leftovers, application.PlannedLeftover{
			RegistrationID: leftover.RegistrationID,
			ParticipantID:  leftover.ParticipantID,
			Reason:         leftover.Reason,
		})
	}
	return plan
}

func toPersistencePlan(plan application.MatchPlan) persistence.Plan {
	model := persistence.Plan{
		SessionID:          plan.SessionID,
		RoundID:            plan.RoundID,
		Instant:            plan.Instant,
		CreatedAt:          plan.CreatedAt,
		OutcomesRecordedAt: cloneTime(plan.OutcomesRecordedAt),
	}
	for _, group := range plan.Groups {
		stored := persistence.PlanGroup{
			MatchID:        group.MatchID,
			MeetingPointID: group.MeetingPointID,
			Topic:          group.Topic,
		}
		for _, member := range group.Members {
			stored.Members = append(stored.Members, persistence.PlanEntry{
				RegistrationID: member.RegistrationID,
				ParticipantID:  member.ParticipantID,
			})
		}
		model.Groups = append(model.Groups, stored)
	}
	for _, leftover := range plan.Leftovers {
		model.Leftovers = append(model.Leftovers, persistence.PlanLeftover{
			RegistrationID: leftover.RegistrationID,
			ParticipantID:  leftover.ParticipantID,
			Reason:         leftover.Reason,
		})
	}
	return model
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return append([]string(nil), values...)
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
