package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/networking-rounds/internal/application"
)

type sessionService interface {
	CreateSession(ctx context.Context, params application.CreateSessionParams) (application.Session, error)
	UpdateSession(ctx context.Context, params application.UpdateSessionParams) (application.Session, error)
	GetSession(ctx context.Context, sessionID string) (application.Session, error)
	ScheduleSession(ctx context.Context, principal application.Principal, sessionID string, publishAt time.Time) (application.Session, error)
	PublishSession(ctx context.Context, principal application.Principal, sessionID string) (application.Session, error)
	CompleteSession(ctx context.Context, principal application.Principal, sessionID string) (application.Session, error)
	RoundPhase(ctx context.Context, roundID string, asOf *time.Time) (application.RoundPhase, error)
}

// SessionHandler serves organizer session management and round phase queries.
type SessionHandler struct {
	service   sessionService
	responder responder
	logger    *slog.Logger
}

func NewSessionHandler(service sessionService, logger *slog.Logger) *SessionHandler {
	base := defaultLogger(logger)
	return &SessionHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *SessionHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "SessionHandler", operation, attrs...)
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "organizer_id", principal.OrganizerID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode session request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "organizer_id", principal.OrganizerID)

	session, err := h.service.CreateSession(r.Context(), application.CreateSessionParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		logger.WarnContext(r.Context(), "session creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("session_id", session.ID).InfoContext(r.Context(), "session created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, sessionResponse{Session: toSessionDTO(session)})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sessionID := r.PathValue("id")
	session, err := h.service.GetSession(r.Context(), sessionID)
	if err != nil {
		h.log(r.Context(), "Get", "session_id", sessionID).WarnContext(r.Context(), "session lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionResponse{Session: toSessionDTO(session)})
}

func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sessionID := r.PathValue("id")
	principal, _ := PrincipalFromContext(r.Context())

	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Update", "organizer_id", principal.OrganizerID, "session_id", sessionID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode session update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "organizer_id", principal.OrganizerID, "session_id", sessionID)

	session, err := h.service.UpdateSession(r.Context(), application.UpdateSessionParams{
		Principal: principal,
		SessionID: sessionID,
		Input:     req.toInput(),
	})
	if err != nil {
		logger.WarnContext(r.Context(), "session update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "session updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionResponse{Session: toSessionDTO(session)})
}

func (h *SessionHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sessionID := r.PathValue("id")
	principal, _ := PrincipalFromContext(r.Context())

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PublishAt.IsZero() {
		h.log(r.Context(), "Schedule", "session_id", sessionID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode schedule request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	h.changeStatus(w, r, "Schedule", func(ctx context.Context) (application.Session, error) {
		return h.service.ScheduleSession(ctx, principal, sessionID, req.PublishAt)
	})
}

func (h *SessionHandler) Publish(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	h.changeStatus(w, r, "Publish", func(ctx context.Context) (application.Session, error) {
		return h.service.PublishSession(ctx, principal, r.PathValue("id"))
	})
}

func (h *SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	h.changeStatus(w, r, "Complete", func(ctx context.Context) (application.Session, error) {
		return h.service.CompleteSession(ctx, principal, r.PathValue("id"))
	})
}

func (h *SessionHandler) changeStatus(w http.ResponseWriter, r *http.Request, operation string, change func(context.Context) (application.Session, error)) {
	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), operation, "organizer_id", principal.OrganizerID, "session_id", r.PathValue("id"))

	session, err := change(r.Context())
	if err != nil {
		logger.WarnContext(r.Context(), "session status change failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("status", string(session.Status)).InfoContext(r.Context(), "session status changed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionResponse{Session: toSessionDTO(session)})
}

// RoundPhase answers GET /rounds/{id}/phase with an optional as_of instant.
func (h *SessionHandler) RoundPhase(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	roundID := r.PathValue("id")
	var asOf *time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("as_of")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.log(r.Context(), "RoundPhase", "round_id", roundID, "error_kind", "bad_request").WarnContext(r.Context(), "invalid as_of", "error", err)
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidAsOf)
			return
		}
		asOf = &parsed
	}

	result, err := h.service.RoundPhase(r.Context(), roundID, asOf)
	if err != nil {
		h.log(r.Context(), "RoundPhase", "round_id", roundID).WarnContext(r.Context(), "phase lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, roundPhaseResponse{
		SessionID: result.SessionID,
		RoundID:   result.RoundID,
		Phase:     result.Phase.String(),
		At:        result.At.UTC().Format(time.RFC3339Nano),
	})
}

type sessionRequest struct {
	Title                      string                `json:"title"`
	GroupSize                  int                   `json:"group_size"`
	MaxParticipants            int                   `json:"max_participants"`
	MaxGroups                  int                   `json:"max_groups"`
	RequireEmailVerification   bool                  `json:"require_email_verification"`
	NotifyOnConfirmationWindow bool                  `json:"notify_on_confirmation_window"`
	TeamsExclusive             bool                  `json:"teams_exclusive"`
	TopicsRequireOverlap       bool                  `json:"topics_require_overlap"`
	Teams                      []string              `json:"teams"`
	Topics                     []string              `json:"topics"`
	Rounds                     []roundRequest        `json:"rounds"`
	MeetingPoints              []meetingPointRequest `json:"meeting_points"`
}

type roundRequest struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	StartsAt        time.Time `json:"starts_at"`
	DurationMinutes int       `json:"duration_minutes"`
	GroupSize       int       `json:"group_size"`
}

type meetingPointRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	PhotoURL string `json:"photo_url"`
	VideoURL string `json:"video_url"`
}

func (r sessionRequest) toInput() application.SessionInput {
	input := application.SessionInput{
		Title:                      strings.TrimSpace(r.Title),
		GroupSize:                  r.GroupSize,
		MaxParticipants:            r.MaxParticipants,
		MaxGroups:                  r.MaxGroups,
		RequireEmailVerification:   r.RequireEmailVerification,
		NotifyOnConfirmationWindow: r.NotifyOnConfirmationWindow,
		TeamsExclusive:             r.TeamsExclusive,
		TopicsRequireOverlap:       r.TopicsRequireOverlap,
		Teams:                      r.Teams,
		Topics:                     r.Topics,
	}
	for _, round := range r.Rounds {
		input.Rounds = append(input.Rounds, application.RoundInput{
			ID:        strings.TrimSpace(round.ID),
			Name:      round.Name,
			StartsAt:  round.StartsAt,
			Duration:  time.Duration(round.DurationMinutes) * time.Minute,
			GroupSize: round.GroupSize,
		})
	}
	for _, point := range r.MeetingPoints {
		input.MeetingPoints = append(input.MeetingPoints, application.MeetingPoint{
			ID:       strings.TrimSpace(point.ID),
			Name:     point.Name,
			Kind:     application.MeetingPointKind(strings.TrimSpace(point.Kind)),
			PhotoURL: strings.TrimSpace(point.PhotoURL),
			VideoURL: strings.TrimSpace(point.VideoURL),
		})
	}
	return input
}

type scheduleRequest struct {
	PublishAt time.Time `json:"publish_at"`
}

type sessionResponse struct {
	Session sessionDTO `json:"session"`
}

type roundPhaseResponse struct {
	SessionID string `json:"session_id"`
	RoundID   string `json:"round_id"`
	Phase     string `json:"phase"`
	At        string `json:"at"`
}

type sessionDTO struct {
	ID                         string            `json:"id"`
	OrganizerID                string            `json:"organizer_id"`
	Title                      string            `json:"title"`
	Status                     string            `json:"status"`
	StartsAt                   string            `json:"starts_at,omitempty"`
	EndsAt                     string            `json:"ends_at,omitempty"`
	PublishAt                  *string           `json:"publish_at,omitempty"`
	GroupSize                  int               `json:"group_size"`
	MaxParticipants            int               `json:"max_participants,omitempty"`
	MaxGroups                  int               `json:"max_groups,omitempty"`
	RequireEmailVerification   bool              `json:"require_email_verification"`
	NotifyOnConfirmationWindow bool              `json:"notify_on_confirmation_window"`
	TeamsExclusive             bool              `json:"teams_exclusive"`
	TopicsRequireOverlap       bool              `json:"topics_require_overlap"`
	Teams                      []string          `json:"teams,omitempty"`
	Topics                     []string          `json:"topics,omitempty"`
	Rounds                     []roundDTO        `json:"rounds"`
	MeetingPoints              []meetingPointDTO `json:"meeting_points,omitempty"`
	CreatedAt                  string            `json:"created_at"`
	UpdatedAt                  string            `json:"updated_at"`
}

type roundDTO struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	StartsAt        string `json:"starts_at"`
	EndsAt          string `json:"ends_at"`
	DurationMinutes int    `json:"duration_minutes"`
	GroupSize       int    `json:"group_size,omitempty"`
}

type meetingPointDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	PhotoURL string `json:"photo_url,omitempty"`
	VideoURL string `json:"video_url,omitempty"`
}

func toSessionDTO(session application.Session) sessionDTO {
	dto := sessionDTO{
		ID:                         session.ID,
		OrganizerID:                session.OrganizerID,
		Title:                      session.Title,
		Status:                     string(session.Status),
		StartsAt:                   formatTime(session.StartsAt),
		EndsAt:                     formatTime(session.EndsAt),
		PublishAt:                  formatTimePtr(session.PublishAt),
		GroupSize:                  session.GroupSize,
		MaxParticipants:            session.MaxParticipants,
		MaxGroups:                  session.MaxGroups,
		RequireEmailVerification:   session.RequireEmailVerification,
		NotifyOnConfirmationWindow: session.NotifyOnConfirmationWindow,
		TeamsExclusive:             session.TeamsExclusive,
		TopicsRequireOverlap:       session.TopicsRequireOverlap,
		Teams:                      session.Teams,
		Topics:                     session.Topics,
		Rounds:                     make([]roundDTO, 0, len(session.Rounds)),
		CreatedAt:                  formatTime(session.CreatedAt),
		UpdatedAt:                  formatTime(session.UpdatedAt),
	}
	for _, round := range session.Rounds {
		dto.Rounds = append(dto.Rounds, roundDTO{
			ID:              round.ID,
			Name:            round.Name,
			StartsAt:        formatTime(round.StartsAt),
			EndsAt:          formatTime(round.EndsAt()),
			DurationMinutes: int(round.Duration / time.Minute),
			GroupSize:       round.GroupSize,
		})
	}
	for _, point := range session.MeetingPoints {
		dto.MeetingPoints = append(dto.MeetingPoints, meetingPointDTO{
			ID:       point.ID,
			Name:     point.Name,
			Kind:     string(point.Kind),
			PhotoURL: point.PhotoURL,
			VideoURL: point.VideoURL,
		})
	}
	return dto
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := formatTime(*t)
	return &formatted
}
