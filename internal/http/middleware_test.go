package http

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/networking-rounds/internal/application"
	"github.com/example/networking-rounds/internal/logging"
	"github.com/example/networking-rounds/internal/phase"
)

func TestIdentify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		organizer   string
		participant string
		expected    application.Principal
	}{
		{name: "anonymous"},
		{name: "organizer", organizer: " org-1 ", expected: application.Principal{OrganizerID: "org-1"}},
		{name: "participant", participant: "p-1", expected: application.Principal{ParticipantID: "p-1"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/anything", nil)
			if tc.organizer != "" {
				req.Header.Set(HeaderOrganizerID, tc.organizer)
			}
			if tc.participant != "" {
				req.Header.Set(HeaderParticipantID, tc.participant)
			}

			var captured application.Principal
			var found bool
			handler := Identify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured, found = PrincipalFromContext(r.Context())
			}))
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if !found {
				t.Fatalf("expected a principal in the request context")
			}
			if captured != tc.expected {
				t.Fatalf("expected %+v, got %+v", tc.expected, captured)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	handler := RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logging.FromContext(r.Context()) == nil {
			t.Errorf("expected a request scoped logger")
		}
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/rounds/r/phase", nil))

	out := buf.String()
	for _, want := range []string{"request_id=1", "path=/rounds/r/phase", "status=418"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log output %q", want, out)
		}
	}
}

func TestHandleServiceError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		status     int
		errorCode  string
		retryAfter bool
	}{
		{name: "unauthorized", err: application.ErrUnauthorized, status: http.StatusForbidden, errorCode: "UNAUTHORIZED"},
		{name: "not found", err: application.ErrNotFound, status: http.StatusNotFound, errorCode: "NOT_FOUND"},
		{name: "validation", err: &application.ValidationError{FieldErrors: map[string]string{"title": "title is required"}}, status: http.StatusUnprocessableEntity, errorCode: "VALIDATION"},
		{name: "window", err: &application.WindowClosedError{Kind: application.ErrCheckInClosed, RoundID: "r", Phase: phase.Completed}, status: http.StatusConflict, errorCode: "CHECK_IN_CLOSED"},
		{name: "conflict", err: &application.ConflictError{RegistrationID: "reg"}, status: http.StatusConflict, errorCode: "CONFLICT"},
		{name: "bad code", err: application.ErrInvalidVerificationCode, status: http.StatusUnprocessableEntity, errorCode: "INVALID_VERIFICATION_CODE"},
		{name: "transient", err: &application.TransientStoreError{Op: "save", Err: application.ErrStoreUnavailable}, status: http.StatusServiceUnavailable, errorCode: "TRANSIENT_STORE", retryAfter: true},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			recorder := httptest.NewRecorder()
			newResponder(nil).handleServiceError(t.Context(), recorder, tc.err)

			if recorder.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, recorder.Code)
			}
			payload := decode[errorResponse](t, recorder)
			if payload.ErrorCode != tc.errorCode {
				t.Fatalf("expected error code %q, got %q", tc.errorCode, payload.ErrorCode)
			}
			if got := recorder.Header().Get("Retry-After") != ""; got != tc.retryAfter {
				t.Fatalf("unexpected Retry-After presence %v", got)
			}
		})
	}
}
