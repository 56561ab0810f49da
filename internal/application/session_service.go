package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/example/networking-rounds/internal/phase"
	"github.com/example/networking-rounds/internal/scheduler"
)

// SessionCacheConfig sizes the session definition cache. A zero Size
// disables caching.
type SessionCacheConfig struct {
	Size int
	TTL  time.Duration
}

// SessionService manages session definitions and their explicit status.
type SessionService struct {
	sessions    SessionRepository
	params      phase.Parameters
	cache       *sessionCache
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewSessionService constructs a session service.
func NewSessionService(sessions SessionRepository, params phase.Parameters, cache SessionCacheConfig, idGenerator func() string, now func() time.Time, logger *slog.Logger) *SessionService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &SessionService{
		sessions:    sessions,
		params:      params,
		cache:       newSessionCache(cache.Size, cache.TTL),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *SessionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SessionService", operation, attrs...)
}

// Parameters returns the window parameters phases are computed with.
func (s *SessionService) Parameters() phase.Parameters {
	return s.params
}

// CreateSession validates the input and stores a draft session owned by the
// calling organizer.
func (s *SessionService) CreateSession(ctx context.Context, params CreateSessionParams) (session Session, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateSession", "organizer_id", params.Principal.OrganizerID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("session_id", session.ID).InfoContext(ctx, "session created")
	}()

	if params.Principal.OrganizerID == "" {
		err = ErrUnauthorized
		return
	}

	vErr := validateSessionInput(params.Input)
	if !vErr.HasErrors() {
		var owned *ValidationError
		if owned, err = s.foreignRounds(ctx, "", params.Input.Rounds); err != nil {
			return
		}
		vErr.merge(owned)
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	createdAt := s.now()
	session = s.applyInput(Session{
		ID:          s.idGenerator(),
		OrganizerID: params.Principal.OrganizerID,
		Status:      phase.SessionDraft,
		CreatedAt:   createdAt,
	}, params.Input)
	session.UpdatedAt = createdAt

	if err = s.save(ctx, session); err != nil {
		return
	}
	return
}

// UpdateSession replaces the editable fields of a session. Published
// sessions can only be edited while every round is still open for
// registration; completed sessions are read-only.
func (s *SessionService) UpdateSession(ctx context.Context, params UpdateSessionParams) (session Session, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateSession",
		"organizer_id", params.Principal.OrganizerID,
		"session_id", params.SessionID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session updated")
	}()

	var existing Session
	existing, err = s.load(ctx, params.SessionID)
	if err != nil {
		return
	}
	if existing.OrganizerID != params.Principal.OrganizerID {
		err = ErrUnauthorized
		return
	}

	vErr := validateSessionInput(params.Input)
	if !vErr.HasErrors() {
		var owned *ValidationError
		if owned, err = s.foreignRounds(ctx, existing.ID, params.Input.Rounds); err != nil {
			return
		}
		vErr.merge(owned)
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}
	if !s.editable(existing) {
		vErr.add("status", fmt.Sprintf("session in status %s can no longer be edited", existing.Status))
		err = vErr
		return
	}

	session = s.applyInput(existing, params.Input)
	session.UpdatedAt = s.now()
	err = s.save(ctx, session)
	return
}

// ScheduleSession moves a draft session to scheduled. The driver publishes
// it at publishAt.
func (s *SessionService) ScheduleSession(ctx context.Context, principal Principal, sessionID string, publishAt time.Time) (Session, error) {
	if publishAt.IsZero() {
		vErr := &ValidationError{}
		vErr.add("publish_at", "publish_at is required")
		return Session{}, vErr
	}
	return s.changeStatus(ctx, "ScheduleSession", &principal, sessionID, phase.SessionScheduled, &publishAt)
}

// PublishSession opens a draft or scheduled session for registration.
func (s *SessionService) PublishSession(ctx context.Context, principal Principal, sessionID string) (Session, error) {
	return s.changeStatus(ctx, "PublishSession", &principal, sessionID, phase.SessionPublished, nil)
}

// CompleteSession closes a published session.
func (s *SessionService) CompleteSession(ctx context.Context, principal Principal, sessionID string) (Session, error) {
	return s.changeStatus(ctx, "CompleteSession", &principal, sessionID, phase.SessionCompleted, nil)
}

// GetSession returns a session definition.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (Session, error) {
	return s.Lookup(ctx, sessionID)
}

// RoundPhase computes the phase of a round at asOf, or now when asOf is nil.
func (s *SessionService) RoundPhase(ctx context.Context, roundID string, asOf *time.Time) (RoundPhase, error) {
	session, round, err := s.LookupByRound(ctx, roundID)
	if err != nil {
		return RoundPhase{}, err
	}
	at := s.now()
	if asOf != nil {
		at = *asOf
	}
	return RoundPhase{
		SessionID: session.ID,
		RoundID:   round.ID,
		Phase:     phase.Compute(session.Status, round.Window(), s.params, at),
		At:        at,
	}, nil
}

// Lookup resolves a session through the cache.
func (s *SessionService) Lookup(ctx context.Context, sessionID string) (Session, error) {
	if session, ok := s.cache.Get(sessionID); ok {
		return session, nil
	}
	return s.load(ctx, sessionID)
}

// LookupByRound resolves the session owning roundID through the cache.
func (s *SessionService) LookupByRound(ctx context.Context, roundID string) (Session, Round, error) {
	session, err := s.sessions.FindSessionByRound(ctx, roundID)
	if err != nil {
		return Session{}, Round{}, mapRepoError("find session by round", err)
	}
	if cached, ok := s.cache.Get(session.ID); ok {
		session = cached
	} else {
		s.cache.Store(session)
	}
	round, ok := session.Round(roundID)
	if !ok {
		return Session{}, Round{}, ErrNotFound
	}
	return session, round, nil
}

// foreignRounds reports round ids that already belong to a session other
// than sessionID. Round ids address registrations and phase lookups, so one
// id can only ever name one round.
func (s *SessionService) foreignRounds(ctx context.Context, sessionID string, rounds []RoundInput) (*ValidationError, error) {
	vErr := &ValidationError{}
	if s.sessions == nil {
		return vErr, nil
	}
	for i, round := range rounds {
		if round.ID == "" {
			continue
		}
		owner, err := s.sessions.FindSessionByRound(ctx, round.ID)
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return nil, mapRepoError("find session by round", err)
		}
		if owner.ID != sessionID {
			vErr.add(fmt.Sprintf("rounds[%d].id", i), "round id is already used by another session")
		}
	}
	return vErr, nil
}

// roundOf resolves a round through the session that owns it.
func roundOf(ctx context.Context, sessions SessionSource, sessionID, roundID string) (Session, Round, error) {
	session, err := sessions.Lookup(ctx, sessionID)
	if err != nil {
		return Session{}, Round{}, err
	}
	round, ok := session.Round(roundID)
	if !ok {
		return Session{}, Round{}, ErrNotFound
	}
	return session, round, nil
}

// activeSessions lists sessions the driver has work for, bypassing the
// cache.
func (s *SessionService) activeSessions(ctx context.Context) ([]Session, error) {
	sessions, err := s.sessions.ListSessions(ctx)
	if err != nil {
		return nil, mapRepoError("list sessions", err)
	}
	active := sessions[:0]
	for _, session := range sessions {
		switch {
		case session.Status == phase.SessionScheduled, session.Status == phase.SessionPublished:
			active = append(active, session)
		case session.Status == phase.SessionCompleted && session.FinalizedAt == nil:
			active = append(active, session)
		}
	}
	return active, nil
}

// markFinalized records that every matched round of a completed session has
// its outcomes recorded.
func (s *SessionService) markFinalized(ctx context.Context, sessionID string) error {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.FinalizedAt != nil {
		return nil
	}
	at := s.now()
	session.FinalizedAt = &at
	session.UpdatedAt = at
	if err := s.save(ctx, session); err != nil {
		return err
	}
	s.loggerWith(ctx, "MarkFinalized", "session_id", sessionID).InfoContext(ctx, "session finalized")
	return nil
}

// publishDue publishes a scheduled session whose PublishAt has passed.
func (s *SessionService) publishDue(ctx context.Context, session Session, now time.Time) (bool, error) {
	if session.Status != phase.SessionScheduled || session.PublishAt == nil || now.Before(*session.PublishAt) {
		return false, nil
	}
	_, err := s.changeStatus(ctx, "PublishDue", nil, session.ID, phase.SessionPublished, nil)
	return err == nil, err
}

// completeFinished completes a published session once every round is
// completed. The caller has already recorded every round's outcomes, so the
// session is finalized in the same step.
func (s *SessionService) completeFinished(ctx context.Context, session Session, now time.Time) (bool, error) {
	if session.Status != phase.SessionPublished {
		return false, nil
	}
	for _, round := range session.Rounds {
		if phase.Compute(session.Status, round.Window(), s.params, now) != phase.Completed {
			return false, nil
		}
	}
	if _, err := s.changeStatus(ctx, "CompleteFinished", nil, session.ID, phase.SessionCompleted, nil); err != nil {
		return false, err
	}
	return true, s.markFinalized(ctx, session.ID)
}

// sessionTransitions lists the explicit session status changes.
var sessionTransitions = map[phase.SessionStatus][]phase.SessionStatus{
	phase.SessionDraft:     {phase.SessionScheduled, phase.SessionPublished},
	phase.SessionScheduled: {phase.SessionDraft, phase.SessionPublished},
	phase.SessionPublished: {phase.SessionCompleted},
}

// changeStatus moves a session to target. A nil principal marks an automatic
// change made by the driver. Reaching a status the session already holds is
// a no-op success.
func (s *SessionService) changeStatus(ctx context.Context, operation string, principal *Principal, sessionID string, target phase.SessionStatus, publishAt *time.Time) (session Session, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}

	logger := s.loggerWith(ctx, operation, "session_id", sessionID, "target_status", string(target))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to change session status", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session status changed")
	}()

	session, err = s.load(ctx, sessionID)
	if err != nil {
		return
	}
	if principal != nil && session.OrganizerID != principal.OrganizerID {
		err = ErrUnauthorized
		return
	}
	if session.Status == target && publishAt == nil {
		return
	}

	allowed := session.Status == target
	for _, next := range sessionTransitions[session.Status] {
		if next == target {
			allowed = true
		}
	}
	if !allowed {
		vErr := &ValidationError{}
		vErr.add("status", fmt.Sprintf("cannot move session from %s to %s", session.Status, target))
		err = vErr
		return
	}

	session.Status = target
	if publishAt != nil {
		at := *publishAt
		session.PublishAt = &at
	}
	session.UpdatedAt = s.now()
	err = s.save(ctx, session)
	return
}

func (s *SessionService) load(ctx context.Context, sessionID string) (Session, error) {
	if s.sessions == nil {
		return Session{}, fmt.Errorf("session repository not configured")
	}
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, mapRepoError("load session", err)
	}
	s.cache.Store(session)
	return session, nil
}

func (s *SessionService) save(ctx context.Context, session Session) error {
	if s.sessions == nil {
		return fmt.Errorf("session repository not configured")
	}
	s.cache.Invalidate(session.ID)
	if err := s.sessions.SaveSession(ctx, session); err != nil {
		return mapRepoError("save session", err)
	}
	return nil
}

func (s *SessionService) editable(session Session) bool {
	switch session.Status {
	case phase.SessionDraft, phase.SessionScheduled:
		return true
	case phase.SessionPublished:
		now := s.now()
		for _, round := range session.Rounds {
			if phase.Compute(session.Status, round.Window(), s.params, now) != phase.OpenForRegistration {
				return false
			}
		}
		return true
	}
	return false
}

func (s *SessionService) applyInput(session Session, input SessionInput) Session {
	session.Title = strings.TrimSpace(input.Title)
	session.GroupSize = input.GroupSize
	session.MaxParticipants = input.MaxParticipants
	session.MaxGroups = input.MaxGroups
	session.RequireEmailVerification = input.RequireEmailVerification
	session.NotifyOnConfirmationWindow = input.NotifyOnConfirmationWindow
	session.TeamsExclusive = input.TeamsExclusive
	session.TopicsRequireOverlap = input.TopicsRequireOverlap
	session.Teams = uniqueStrings(input.Teams)
	session.Topics = uniqueStrings(input.Topics)

	session.Rounds = make([]Round, 0, len(input.Rounds))
	for _, in := range input.Rounds {
		id := in.ID
		if id == "" {
			id = s.idGenerator()
		}
		session.Rounds = append(session.Rounds, Round{
			ID:        id,
			Name:      strings.TrimSpace(in.Name),
			StartsAt:  in.StartsAt,
			Duration:  in.Duration,
			GroupSize: in.GroupSize,
		})
	}

	session.MeetingPoints = make([]MeetingPoint, 0, len(input.MeetingPoints))
	for _, in := range input.MeetingPoints {
		point := in
		if point.ID == "" {
			point.ID = s.idGenerator()
		}
		point.Name = strings.TrimSpace(point.Name)
		if point.Kind == MeetingPointVirtual {
			point.PhotoURL = ""
		} else {
			point.VideoURL = ""
		}
		session.MeetingPoints = append(session.MeetingPoints, point)
	}

	if len(session.Rounds) > 0 {
		session.StartsAt = session.Rounds[0].StartsAt
		session.EndsAt = session.Rounds[0].EndsAt()
		for _, round := range session.Rounds[1:] {
			if round.StartsAt.Before(session.StartsAt) {
				session.StartsAt = round.StartsAt
			}
			if round.EndsAt().After(session.EndsAt) {
				session.EndsAt = round.EndsAt()
			}
		}
	}
	return session
}

func validateSessionInput(input SessionInput) *ValidationError {
	vErr := &ValidationError{}

	if strings.TrimSpace(input.Title) == "" {
		vErr.add("title", "title is required")
	}
	if input.GroupSize < 1 {
		vErr.add("group_size", "group size must be at least 1")
	}
	if input.MaxParticipants < 0 {
		vErr.add("max_participants", "must not be negative")
	}
	if input.MaxGroups < 0 {
		vErr.add("max_groups", "must not be negative")
	}
	if hasDuplicates(input.Teams) {
		vErr.add("teams", "teams must be unique")
	}
	if hasDuplicates(input.Topics) {
		vErr.add("topics", "topics must be unique")
	}

	vErr.merge(validateRounds(input.Rounds))
	vErr.merge(validateMeetingPoints(input.MeetingPoints))
	return vErr
}

func validateRounds(rounds []RoundInput) *ValidationError {
	vErr := &ValidationError{}
	if len(rounds) == 0 {
		vErr.add("rounds", "at least one round is required")
		return vErr
	}

	seen := make(map[string]struct{}, len(rounds))
	slots := make([]scheduler.Slot, 0, len(rounds))
	for i, round := range rounds {
		field := fmt.Sprintf("rounds[%d]", i)
		if strings.TrimSpace(round.Name) == "" {
			vErr.add(field+".name", "name is required")
		}
		if round.StartsAt.IsZero() {
			vErr.add(field+".starts_at", "start time is required")
		}
		if round.Duration <= 0 {
			vErr.add(field+".duration", "duration must be positive")
		}
		if round.GroupSize < 0 {
			vErr.add(field+".group_size", "must not be negative")
		}
		if round.ID != "" {
			if _, dup := seen[round.ID]; dup {
				vErr.add(field+".id", "round ids must be unique")
			}
			seen[round.ID] = struct{}{}
		}
		slots = append(slots, scheduler.Slot{
			ID:    fmt.Sprintf("%d", i),
			Start: round.StartsAt,
			End:   round.StartsAt.Add(round.Duration),
		})
	}

	if vErr.HasErrors() {
		return vErr
	}
	for _, conflict := range scheduler.DetectConflicts(slots) {
		field := "rounds[" + conflict.SlotID + "]"
		switch conflict.Type {
		case scheduler.ConflictTypeOrder:
			vErr.add(field+".starts_at", "rounds must be listed in chronological order")
		case scheduler.ConflictTypeOverlap:
			vErr.add(field+".starts_at", "round overlaps round "+conflict.WithSlotID)
		}
	}
	return vErr
}

func validateMeetingPoints(points []MeetingPoint) *ValidationError {
	vErr := &ValidationError{}
	for i, point := range points {
		field := fmt.Sprintf("meeting_points[%d]", i)
		if strings.TrimSpace(point.Name) == "" {
			vErr.add(field+".name", "name is required")
		}
		switch point.Kind {
		case MeetingPointVirtual:
			if !validURL(point.VideoURL) {
				vErr.add(field+".video_url", "virtual meeting points need a valid video call URL")
			}
		case MeetingPointPhysical:
			if point.PhotoURL != "" && !validURL(point.PhotoURL) {
				vErr.add(field+".photo_url", "must be a valid URL")
			}
		default:
			vErr.add(field+".kind", "kind must be physical or virtual")
		}
	}
	return vErr
}

func validURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.ParseRequestURI(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func hasDuplicates(values []string) bool {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			return true
		}
		seen[v] = struct{}{}
	}
	return false
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
