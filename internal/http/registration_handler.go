package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/networking-rounds/internal/application"
)

type registrationService interface {
	RegisterParticipant(ctx context.Context, params application.RegisterParams) (application.RegisterResult, error)
	GetRegistration(ctx context.Context, principal application.Principal, registrationID string) (application.Registration, error)
	VerifyEmail(ctx context.Context, principal application.Principal, registrationID, code string) (application.Registration, error)
	ConfirmAttendance(ctx context.Context, principal application.Principal, registrationID string) (application.Registration, error)
	Unregister(ctx context.Context, principal application.Principal, registrationID string) (application.Registration, error)
}

// RegistrationHandler serves participant registration endpoints.
type RegistrationHandler struct {
	service   registrationService
	responder responder
	logger    *slog.Logger
}

func NewRegistrationHandler(service registrationService, logger *slog.Logger) *RegistrationHandler {
	base := defaultLogger(logger)
	return &RegistrationHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *RegistrationHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "RegistrationHandler", operation, attrs...)
}

// Register enrols the calling participant in one or more rounds of a session.
func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sessionID := r.PathValue("id")
	principal, _ := PrincipalFromContext(r.Context())
	if principal.ParticipantID == "" {
		h.log(r.Context(), "Register", "session_id", sessionID, "error_kind", "unauthorized").WarnContext(r.Context(), "missing participant identity")
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingIdentity)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Register", "session_id", sessionID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode registration request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Register", "session_id", sessionID, "participant_id", principal.ParticipantID)

	result, err := h.service.RegisterParticipant(r.Context(), application.RegisterParams{
		SessionID: sessionID,
		RoundIDs:  req.RoundIDs,
		Participant: application.Participant{
			ID:    principal.ParticipantID,
			Name:  strings.TrimSpace(req.Name),
			Email: strings.TrimSpace(req.Email),
		},
		SelectedTeam:   strings.TrimSpace(req.Team),
		SelectedTopics: req.Topics,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "registration failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("status", string(result.Status)).InfoContext(r.Context(), "participant registered")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, registerResponse{
		Status:        string(result.Status),
		Registrations: toRegistrationDTOs(result.Registrations),
	})
}

func (h *RegistrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "Get", func(ctx context.Context, principal application.Principal, id string) (application.Registration, error) {
		return h.service.GetRegistration(ctx, principal, id)
	})
}

func (h *RegistrationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "Confirm", func(ctx context.Context, principal application.Principal, id string) (application.Registration, error) {
		return h.service.ConfirmAttendance(ctx, principal, id)
	})
}

func (h *RegistrationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "Cancel", func(ctx context.Context, principal application.Principal, id string) (application.Registration, error) {
		return h.service.Unregister(ctx, principal, id)
	})
}

func (h *RegistrationHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Verify", "registration_id", r.PathValue("id"), "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode verification request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	h.act(w, r, "Verify", func(ctx context.Context, principal application.Principal, id string) (application.Registration, error) {
		return h.service.VerifyEmail(ctx, principal, id, strings.TrimSpace(req.Code))
	})
}

// act runs a participant action on the registration named in the path.
func (h *RegistrationHandler) act(w http.ResponseWriter, r *http.Request, operation string, fn func(context.Context, application.Principal, string) (application.Registration, error)) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	registrationID := r.PathValue("id")
	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), operation, "registration_id", registrationID, "participant_id", principal.ParticipantID)
	if principal.ParticipantID == "" {
		logger.WarnContext(r.Context(), "missing participant identity", "error_kind", "unauthorized")
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingIdentity)
		return
	}

	registration, err := fn(r.Context(), principal, registrationID)
	if err != nil {
		logger.WarnContext(r.Context(), "registration action failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("status", string(registration.Status)).InfoContext(r.Context(), "registration action completed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, registrationResponse{Registration: toRegistrationDTO(registration)})
}

type registerRequest struct {
	RoundIDs []string `json:"round_ids"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Team     string   `json:"team"`
	Topics   []string `json:"topics"`
}

type verifyRequest struct {
	Code string `json:"code"`
}

type registerResponse struct {
	Status        string            `json:"status"`
	Registrations []registrationDTO `json:"registrations"`
}

type registrationResponse struct {
	Registration registrationDTO `json:"registration"`
}

type registrationDTO struct {
	ID            string   `json:"id"`
	SessionID     string   `json:"session_id"`
	RoundID       string   `json:"round_id"`
	ParticipantID string   `json:"participant_id"`
	Name          string   `json:"name,omitempty"`
	Status        string   `json:"status"`
	Team          string   `json:"team,omitempty"`
	Topics        []string `json:"topics,omitempty"`
	MatchID       string   `json:"match_id,omitempty"`
	NoMatchReason string   `json:"no_match_reason,omitempty"`
	RegisteredAt  string   `json:"registered_at"`
	VerifiedAt    *string  `json:"verified_at,omitempty"`
	ConfirmedAt   *string  `json:"confirmed_at,omitempty"`
	MatchedAt     *string  `json:"matched_at,omitempty"`
	CheckedInAt   *string  `json:"checked_in_at,omitempty"`
	MetAt         *string  `json:"met_at,omitempty"`
	CancelledAt   *string  `json:"cancelled_at,omitempty"`
}

func toRegistrationDTO(registration application.Registration) registrationDTO {
	return registrationDTO{
		ID:            registration.ID,
		SessionID:     registration.SessionID,
		RoundID:       registration.RoundID,
		ParticipantID: registration.Participant.ID,
		Name:          registration.Participant.Name,
		Status:        string(registration.Status),
		Team:          registration.SelectedTeam,
		Topics:        registration.SelectedTopics,
		MatchID:       registration.MatchID,
		NoMatchReason: registration.NoMatchReason,
		RegisteredAt:  formatTime(registration.RegisteredAt),
		VerifiedAt:    formatTimePtr(registration.VerifiedAt),
		ConfirmedAt:   formatTimePtr(registration.ConfirmedAt),
		MatchedAt:     formatTimePtr(registration.MatchedAt),
		CheckedInAt:   formatTimePtr(registration.CheckedInAt),
		MetAt:         formatTimePtr(registration.MetAt),
		CancelledAt:   formatTimePtr(registration.CancelledAt),
	}
}

func toRegistrationDTOs(registrations []application.Registration) []registrationDTO {
	out := make([]registrationDTO, 0, len(registrations))
	for _, registration := range registrations {
		out = append(out, toRegistrationDTO(registration))
	}
	return out
}
