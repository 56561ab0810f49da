package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/networking-rounds/internal/application"
)

type outcomeService interface {
	CheckIn(ctx context.Context, principal application.Principal, matchID string) (application.Registration, error)
	ConfirmPartnerMet(ctx context.Context, principal application.Principal, matchID string) (application.Registration, error)
}

// MatchHandler records what happened at a meeting point.
type MatchHandler struct {
	service   outcomeService
	responder responder
	logger    *slog.Logger
}

func NewMatchHandler(service outcomeService, logger *slog.Logger) *MatchHandler {
	base := defaultLogger(logger)
	return &MatchHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *MatchHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.record(w, r, "CheckIn", func(ctx context.Context, principal application.Principal, matchID string) (application.Registration, error) {
		return h.service.CheckIn(ctx, principal, matchID)
	})
}

func (h *MatchHandler) Met(w http.ResponseWriter, r *http.Request) {
	h.record(w, r, "Met", func(ctx context.Context, principal application.Principal, matchID string) (application.Registration, error) {
		return h.service.ConfirmPartnerMet(ctx, principal, matchID)
	})
}

func (h *MatchHandler) record(w http.ResponseWriter, r *http.Request, operation string, fn func(context.Context, application.Principal, string) (application.Registration, error)) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	matchID := r.PathValue("id")
	principal, _ := PrincipalFromContext(r.Context())
	logger := handlerLogger(r.Context(), h.logger, "MatchHandler", operation, "match_id", matchID, "participant_id", principal.ParticipantID)
	if principal.ParticipantID == "" {
		logger.WarnContext(r.Context(), "missing participant identity", "error_kind", "unauthorized")
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingIdentity)
		return
	}

	registration, err := fn(r.Context(), principal, matchID)
	if err != nil {
		logger.WarnContext(r.Context(), "outcome not recorded", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("status", string(registration.Status)).InfoContext(r.Context(), "outcome recorded")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, registrationResponse{Registration: toRegistrationDTO(registration)})
}
