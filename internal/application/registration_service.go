package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/networking-rounds/internal/lifecycle"
	"github.com/example/networking-rounds/internal/phase"
)

// registrationNamespace seeds the name-based registration ids.
var registrationNamespace = uuid.MustParse("6f1c2a56-3d7e-4b1a-9c55-2e8f0b7d4a10")

// RegistrationID returns the deterministic id of a participant's
// registration for a round, so repeated attempts address the same record.
func RegistrationID(sessionID, roundID, participantID string) string {
	return uuid.NewSHA1(registrationNamespace, []byte(sessionID+"|"+roundID+"|"+participantID)).String()
}

// ReasonConfirmedAfterMatching is recorded for registrations confirmed after
// the round's plan was committed.
const ReasonConfirmedAfterMatching = "confirmed after matching had already run for this round"

// RegistrationService handles participant actions on registrations.
type RegistrationService struct {
	sessions      SessionSource
	registrations RegistrationRepository
	matches       MatchRepository
	notifier      Notifier
	params        phase.Parameters
	hashParams    Argon2idParams
	transitions   *transitioner
	now           func() time.Time
	logger        *slog.Logger
}

// NewRegistrationService constructs a registration service.
func NewRegistrationService(sessions SessionSource, registrations RegistrationRepository, matches MatchRepository, notifier Notifier, params phase.Parameters, hashParams Argon2idParams, now func() time.Time, logger *slog.Logger) *RegistrationService {
	if now == nil {
		now = time.Now
	}
	if hashParams.KeyLength == 0 {
		hashParams = DefaultArgon2idParams
	}
	return &RegistrationService{
		sessions:      sessions,
		registrations: registrations,
		matches:       matches,
		notifier:      defaultNotifier(notifier),
		params:        params,
		hashParams:    hashParams,
		transitions:   &transitioner{registrations: registrations, matches: matches, now: now},
		now:           now,
		logger:        defaultLogger(logger),
	}
}

func (s *RegistrationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RegistrationService", operation, attrs...)
}

// RegisterParticipant registers a participant for one or more rounds of a
// session. Every round must still be open for registration; otherwise
// nothing is written and a RegistrationClosed error is returned.
func (s *RegistrationService) RegisterParticipant(ctx context.Context, params RegisterParams) (result RegisterResult, err error) {
	if s == nil {
		err = fmt.Errorf("RegistrationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "RegisterParticipant",
		"session_id", params.SessionID,
		"participant_id", params.Participant.ID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to register participant", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("status", string(result.Status), "rounds", len(result.Registrations)).InfoContext(ctx, "participant registered")
	}()

	// Field errors are collected across the request and the session it
	// names; only a missing session id stops validation early.
	vErr := validateRegisterParams(params)
	if _, missing := vErr.FieldErrors["session_id"]; missing {
		err = vErr
		return
	}

	var session Session
	session, err = s.sessions.Lookup(ctx, params.SessionID)
	if err != nil {
		return
	}

	vErr.merge(validateSelections(session, params))
	if session.RequireEmailVerification && strings.TrimSpace(params.Participant.Email) == "" {
		vErr.add("participant.email", "email is required for this session")
	}
	rounds := make([]Round, 0, len(params.RoundIDs))
	for _, roundID := range uniqueStrings(params.RoundIDs) {
		round, ok := session.Round(roundID)
		if !ok {
			vErr.add("round_ids", fmt.Sprintf("round %s does not belong to session", roundID))
			continue
		}
		rounds = append(rounds, round)
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	for _, round := range rounds {
		p := phase.Compute(session.Status, round.Window(), s.params, now)
		if err = Admit(ActionRegister, round.ID, p, lifecycle.StatusNone); err != nil {
			return
		}
	}

	var code, hash string
	if session.RequireEmailVerification {
		if code, err = newVerificationCode(); err != nil {
			return
		}
		if hash, err = hashVerificationCode(code, s.hashParams); err != nil {
			return
		}
	}

	input := lifecycle.Input{Event: lifecycle.EventRegister, RequiresVerification: session.RequireEmailVerification}
	changed := false
	for _, round := range rounds {
		current := Registration{
			ID:          RegistrationID(session.ID, round.ID, params.Participant.ID),
			SessionID:   session.ID,
			RoundID:     round.ID,
			Participant: params.Participant,
			Status:      lifecycle.StatusNone,
		}
		var stored Registration
		stored, err = s.registrations.GetRegistration(ctx, current.ID)
		switch {
		case err == nil:
			current = stored
		case isNotFound(err):
			err = nil
		default:
			err = mapRepoError("load registration", err)
			return
		}

		var (
			registration Registration
			outcome      lifecycle.Outcome
		)
		registration, outcome, err = s.transitions.advanceFrom(ctx, current, step{
			input:   input,
			roundID: round.ID,
			phase:   phase.OpenForRegistration,
			edit: func(r *Registration, _ time.Time) {
				r.Participant = params.Participant
				r.SelectedTeam = strings.TrimSpace(params.SelectedTeam)
				r.SelectedTopics = uniqueStrings(params.SelectedTopics)
				r.VerificationHash = hash
				r.MatchID = ""
				r.NoMatchReason = ""
			},
		})
		if err != nil {
			return
		}
		changed = changed || outcome.Changed
		result.Registrations = append(result.Registrations, registration)
	}

	result.Status = lifecycle.StatusRegistered
	for _, registration := range result.Registrations {
		if registration.Status == lifecycle.StatusPendingVerification {
			result.Status = lifecycle.StatusPendingVerification
		}
	}

	if changed {
		s.notifyRegistered(ctx, logger, session, rounds, params.Participant, code)
	}
	return
}

// VerifyEmail completes a pending registration with the code that was sent
// to the participant.
func (s *RegistrationService) VerifyEmail(ctx context.Context, principal Principal, registrationID, code string) (registration Registration, err error) {
	if s == nil {
		err = fmt.Errorf("RegistrationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "VerifyEmail", "registration_id", registrationID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to verify email", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("status", string(registration.Status)).InfoContext(ctx, "email verified")
	}()

	var (
		current Registration
		p       phase.Phase
	)
	current, p, err = s.loadOwned(ctx, principal, registrationID)
	if err != nil {
		return
	}

	if current.Status == lifecycle.StatusPendingVerification {
		if err = Admit(ActionVerifyEmail, current.RoundID, p, current.Status); err != nil {
			return
		}
		if verifyCode(current.VerificationHash, code) != nil {
			err = ErrInvalidVerificationCode
			return
		}
	}

	registration, _, err = s.transitions.advanceFrom(ctx, current, step{
		input:   lifecycle.Input{Event: lifecycle.EventVerifyEmail},
		roundID: current.RoundID,
		phase:   p,
		edit: func(r *Registration, _ time.Time) {
			r.VerificationHash = ""
		},
	})
	return
}

// ConfirmAttendance confirms a registration. Repeating the call, or racing
// the driver, is a successful no-op once the registration is confirmed.
func (s *RegistrationService) ConfirmAttendance(ctx context.Context, principal Principal, registrationID string) (registration Registration, err error) {
	if s == nil {
		err = fmt.Errorf("RegistrationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ConfirmAttendance", "registration_id", registrationID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to confirm attendance", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("status", string(registration.Status)).InfoContext(ctx, "attendance confirmed")
	}()

	var (
		current Registration
		p       phase.Phase
	)
	current, p, err = s.loadOwned(ctx, principal, registrationID)
	if err != nil {
		return
	}
	if err = Admit(ActionConfirm, current.RoundID, p, current.Status); err != nil {
		return
	}

	var outcome lifecycle.Outcome
	registration, outcome, err = s.transitions.advanceFrom(ctx, current, step{
		input:   lifecycle.Input{Event: lifecycle.EventConfirm, Unverified: current.VerificationHash != ""},
		roundID: current.RoundID,
		phase:   p,
	})
	if err != nil || !outcome.Changed || p.Before(phase.Matching) {
		return
	}

	// The confirmation landed at the matching instant. If the plan has
	// already been committed without this registration it can no longer be
	// placed.
	registration, err = s.reconcileLateConfirmation(ctx, registration, p)
	return
}

// Unregister cancels a registration. Withdrawal has no time gate except
// that a participant referenced by a match can no longer leave.
func (s *RegistrationService) Unregister(ctx context.Context, principal Principal, registrationID string) (registration Registration, err error) {
	if s == nil {
		err = fmt.Errorf("RegistrationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Unregister", "registration_id", registrationID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to unregister", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "registration cancelled")
	}()

	var (
		current Registration
		p       phase.Phase
	)
	current, p, err = s.loadOwned(ctx, principal, registrationID)
	if err != nil {
		return
	}
	if err = Admit(ActionCancel, current.RoundID, p, current.Status); err != nil {
		return
	}

	registration, _, err = s.transitions.advanceFrom(ctx, current, step{
		input:   lifecycle.Input{Event: lifecycle.EventCancel},
		roundID: current.RoundID,
		phase:   p,
	})
	return
}

// GetRegistration returns a registration owned by the principal.
func (s *RegistrationService) GetRegistration(ctx context.Context, principal Principal, registrationID string) (Registration, error) {
	registration, _, err := s.loadOwned(ctx, principal, registrationID)
	if err != nil {
		return Registration{}, err
	}
	registration.VerificationHash = ""
	return registration, nil
}

// loadOwned reads a registration, checks ownership and computes the phase of
// its round at the current instant.
func (s *RegistrationService) loadOwned(ctx context.Context, principal Principal, registrationID string) (Registration, phase.Phase, error) {
	registration, err := s.registrations.GetRegistration(ctx, registrationID)
	if err != nil {
		return Registration{}, 0, mapRepoError("load registration", err)
	}
	if principal.ParticipantID == "" || registration.Participant.ID != principal.ParticipantID {
		return Registration{}, 0, ErrUnauthorized
	}
	session, round, err := roundOf(ctx, s.sessions, registration.SessionID, registration.RoundID)
	if err != nil {
		return Registration{}, 0, err
	}
	return registration, phase.Compute(session.Status, round.Window(), s.params, s.now()), nil
}

func (s *RegistrationService) reconcileLateConfirmation(ctx context.Context, registration Registration, p phase.Phase) (Registration, error) {
	if s.matches == nil {
		return registration, nil
	}
	session, round, err := roundOf(ctx, s.sessions, registration.SessionID, registration.RoundID)
	if err != nil {
		return registration, err
	}
	plan, err := s.matches.GetPlan(ctx, session.ID, round.ID, round.StartsAt)
	if isNotFound(err) {
		return registration, nil
	}
	if err != nil {
		return registration, mapRepoError("load plan", err)
	}
	if plan.includes(registration.ID) {
		return registration, nil
	}

	updated, _, err := s.transitions.advanceFrom(ctx, registration, step{
		input:   lifecycle.Input{Event: lifecycle.EventEnterMatching, Assigned: false},
		roundID: round.ID,
		phase:   p,
		edit: func(r *Registration, _ time.Time) {
			r.NoMatchReason = ReasonConfirmedAfterMatching
		},
	})
	return updated, err
}

func (s *RegistrationService) notifyRegistered(ctx context.Context, logger *slog.Logger, session Session, rounds []Round, participant Participant, code string) {
	template := TemplateRegistrationReceived
	variables := map[string]any{
		"session_title": session.Title,
		"round_names":   roundNames(rounds),
		"round_start":   rounds[0].StartsAt,
	}
	if code != "" {
		template = TemplateVerifyEmail
		variables["code"] = code
	}
	send(ctx, logger, s.notifier, Notification{Template: template, Participant: participant, Variables: variables})
}

// send delivers a notification and logs the outcome. It never fails.
func send(ctx context.Context, logger *slog.Logger, notifier Notifier, notification Notification) {
	result, err := notifier.Send(ctx, notification)
	if err != nil {
		logger.WarnContext(ctx, "notification failed",
			"template", notification.Template,
			"participant_id", notification.Participant.ID,
			"error", err,
		)
		return
	}
	logger.DebugContext(ctx, "notification dispatched",
		"template", notification.Template,
		"participant_id", notification.Participant.ID,
		"result", string(result),
	)
}

func roundNames(rounds []Round) []string {
	names := make([]string, 0, len(rounds))
	for _, round := range rounds {
		names = append(names, round.Name)
	}
	return names
}

func validateRegisterParams(params RegisterParams) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(params.SessionID) == "" {
		vErr.add("session_id", "session is required")
	}
	if strings.TrimSpace(params.Participant.ID) == "" {
		vErr.add("participant.id", "participant identity is required")
	}
	if len(uniqueStrings(params.RoundIDs)) == 0 {
		vErr.add("round_ids", "at least one round is required")
	}
	if email := strings.TrimSpace(params.Participant.Email); email != "" && !strings.Contains(email, "@") {
		vErr.add("participant.email", "must be a valid email address")
	}
	return vErr
}

func validateSelections(session Session, params RegisterParams) *ValidationError {
	vErr := &ValidationError{}
	if team := strings.TrimSpace(params.SelectedTeam); team != "" && !contains(session.Teams, team) {
		vErr.add("selected_team", "unknown team")
	}
	for _, topic := range uniqueStrings(params.SelectedTopics) {
		if !contains(session.Topics, topic) {
			vErr.add("selected_topics", fmt.Sprintf("unknown topic %q", topic))
			break
		}
	}
	return vErr
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
