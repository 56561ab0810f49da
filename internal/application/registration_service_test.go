package application

import (
	"context"
	"errors"
	"testing"

	"github.com/example/networking-rounds/internal/lifecycle"
)

func TestRegisterParticipant_OpenRound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedSession(t, sampleSession())

	registration := env.register(t, "alice")
	if registration.Status != lifecycle.StatusRegistered {
		t.Fatalf("expected registered, got %s", registration.Status)
	}
	if registration.ID != RegistrationID("session-1", "round-1", "alice") {
		t.Fatalf("expected deterministic id, got %s", registration.ID)
	}
	if !registration.RegisteredAt.Equal(at(13, 0, 0)) {
		t.Fatalf("unexpected registered_at %v", registration.RegisteredAt)
	}
	if got := env.notifier.byTemplate(TemplateRegistrationReceived); len(got) != 1 {
		t.Fatalf("expected one registration notification, got %d", len(got))
	}
}

func TestRegisterParticipant_SafetyWindowRejects(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedSession(t, sampleSession())
	env.clock.Set(at(13, 54, 0))

	_, err := env.registrations.RegisterParticipant(context.Background(), RegisterParams{
		SessionID:   "session-1",
		RoundIDs:    []string{"round-1"},
		Participant: Participant{ID: "late", Name: "Late"},
	})
	if !errors.Is(err, ErrRegistrationClosed) {
		t.Fatalf("expected ErrRegistrationClosed, got %v", err)
	}
	var closed *WindowClosedError
	if !errors.As(err, &closed) || closed.RoundID != "round-1" {
		t.Fatalf("expected WindowClosedError for round-1, got %#v", err)
	}
	if _, err := env.repo.GetRegistration(context.Background(), RegistrationID("session-1", "round-1", "late")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected nothing written, got %v", err)
	}
	if len(env.notifier.sent) != 0 {
		t.Fatalf("expected no notifications")
	}
}

func TestRegisterParticipant_OneClosedRoundRejectsAll(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	session := sampleSession()
	session.Rounds = append(session.Rounds, Round{ID: "round-2", Name: "Second", StartsAt: at(15, 0, 0), Duration: session.Rounds[0].Duration})
	env.seedSession(t, session)
	env.clock.Set(at(13, 58, 0))

	_, err := env.registrations.RegisterParticipant(context.Background(), RegisterParams{
		SessionID:   "session-1",
		RoundIDs:    []string{"round-2", "round-1"},
		Participant: Participant{ID: "bob"},
	})
	if !errors.Is(err, ErrRegistrationClosed) {
		t.Fatalf("expected ErrRegistrationClosed, got %v", err)
	}
	if _, err := env.repo.GetRegistration(context.Background(), RegistrationID("session-1", "round-2", "bob")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected round-2 registration to be rolled back, got %v", err)
	}
}

func TestRegisterParticipant_RepeatIsNoOp(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedSession(t, sampleSession())

	first := env.register(t, "alice")
	env.clock.Set(at(13, 10, 0))
	second := env.register(t, "alice")

	if first.ID != second.ID {
		t.Fatalf("expected the same registration, got %s and %s", first.ID, second.ID)
	}
	if !second.RegisteredAt.Equal(first.RegisteredAt) {
		t.Fatalf("expected registered_at to be kept, got %v", second.RegisteredAt)
	}
	if got := env.notifier.byTemplate(TemplateRegistrationReceived); len(got) != 1 {
		t.Fatalf("expected a single notification, got %d", len(got))
	}
}

func TestRegisterParticipant_Validation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedSession(t, sampleSession())

	_, err := env.registrations.RegisterParticipant(context.Background(), RegisterParams{
		SessionID:      "session-1",
		RoundIDs:       []string{"round-1", "round-9"},
		Participant:    Participant{ID: "alice", Email: "not-an-email"},
		SelectedTeam:   "green",
		SelectedTopics: []string{"go"},
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"participant.email", "selected_team", "round_ids"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Fatalf("expected %s error, got %v", field, vErr.FieldErrors)
		}
	}

	_, err = env.registrations.RegisterParticipant(context.Background(), RegisterParams{RoundIDs: []string{"round-1"}, Participant: Participant{ID: "alice"}})
	if !errors.As(err, &vErr) || vErr.FieldErrors["session_id"] == "" {
		t.Fatalf("expected session_id error, got %v", err)
	}

	if _, err := env.registrations.RegisterParticipant(context.Background(), RegisterParams{SessionID: "missing", RoundIDs: []string{"r"}, Participant: Participant{ID: "a"}}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown session, got %v", err)
	}
}

func TestRegisterParticipant_EmailVerification(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	session := sampleSession()
	session.RequireEmailVerification = true
	env.seedSession(t, session)

	result, err := env.registrations.RegisterParticipant(context.Background(), RegisterParams{
		SessionID:   "session-1",
		RoundIDs:    []string{"round-1"},
		Participant: Participant{ID: "alice", Email: "alice@example.com"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != lifecycle.StatusPendingVerification {
		t.Fatalf("expected pending verification, got %s", result.Status)
	}

	sent := env.notifier.byTemplate(TemplateVerifyEmail)
	if len(sent) != 1 {
		t.Fatalf("expected one verification email, got %d", len(sent))
	}
	code, _ := sent[0].Variables["code"].(string)
	if len(code) != 6 {
		t.Fatalf("expected a six digit code, got %q", code)
	}

	principal := Principal{ParticipantID: "alice"}
	regID := result.Registrations[0].ID
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	if _, err := env.registrations.VerifyEmail(context.Background(), principal, regID, wrong); !errors.Is(err, ErrInvalidVerificationCode) {
		t.Fatalf("expected ErrInvalidVerificationCode, got %v", err)
	}

	verified, err := env.registrations.VerifyEmail(context.Background(), principal, regID, code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.Status != lifecycle.StatusRegistered || verified.VerifiedAt == nil {
		t.Fatalf("expected verified registration, got %+v", verified)
	}
	if verified.VerificationHash != "" {
		t.Fatalf("expected verification hash to be cleared")
	}

	// A second verification is a no-op even with a stale code.
	if _, err := env.registrations.VerifyEmail(context.Background(), principal, regID, wrong); err != nil {
		t.Fatalf("expected repeat verification to succeed, got %v", err)
	}
}

func TestConfirmAttendance_UnverifiedStaysUnconfirmed(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	session := sampleSession()
	session.RequireEmailVerification = true
	env.seedSession(t, session)

	result, err := env.registrations.RegisterParticipant(context.Background(), RegisterParams{
		SessionID:   "session-1",
		RoundIDs:    []string{"round-1"},
		Participant: Participant{ID: "alice", Email: "alice@example.com"},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	regID := result.Registrations[0].ID

	env.clock.Set(at(14, 0, 0))
	if _, err := env.driver.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := env.repo.registration(t, regID).Status; got != lifecycle.StatusUnconfirmed {
		t.Fatalf("expected unconfirmed after the deadline, got %s", got)
	}

	_, err = env.registrations.ConfirmAttendance(context.Background(), Principal{ParticipantID: "alice"}, regID)
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Reason != lifecycle.ReasonNotVerified {
		t.Fatalf("expected a not-verified conflict, got %v", err)
	}
	if got := env.repo.registration(t, regID).Status; got != lifecycle.StatusUnconfirmed {
		t.Fatalf("expected the registration to stay unconfirmed, got %s", got)
	}
}

func TestConfirmAttendance(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedSession(t, sampleSession())
	registration := env.register(t, "alice")
	principal := Principal{ParticipantID: "alice"}

	env.clock.Set(at(13, 30, 0))
	if _, err := env.registrations.ConfirmAttendance(context.Background(), principal, registration.ID); !errors.Is(err, ErrConfirmationClosed) {
		t.Fatalf("expected ErrConfirmationClosed before the window, got %v", err)
	}

	env.clock.Set(at(13, 56, 0))
	first := env.confirm(t, registration)
	if first.Status != lifecycle.StatusConfirmed || first.ConfirmedAt == nil {
		t.Fatalf("expected confirmed, got %+v", first)
	}

	env.clock.Set(at(13, 58, 0))
	second := env.confirm(t, registration)
	if !second.ConfirmedAt.Equal(*first.ConfirmedAt) {
		t.Fatalf("expected confirmed_at to stay %v, got %v", *first.ConfirmedAt, *second.ConfirmedAt)
	}
	stored := env.repo.registration(t, registration.ID)
	if !stored.LastStatusUpdate.Equal(at(13, 56, 0)) {
		t.Fatalf("expected no write for the repeated confirm, got %v", stored.LastStatusUpdate)
	}
}

func TestConfirmAttendance_OwnershipAndMissing(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedSession(t, sampleSession())
	registration := env.register(t, "alice")
	env.clock.Set(at(13, 56, 0))

	if _, err := env.registrations.ConfirmAttendance(context.Background(), Principal{ParticipantID: "mallory"}, registration.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := env.registrations.ConfirmAttendance(context.Background(), Principal{ParticipantID: "alice"}, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConfirmAttendance_AfterPlanBecomesNoMatch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	session := env.seedSession(t, sampleSession())
	late := env.register(t, "zed")
	pool := env.confirmedPool(t, 2)

	env.clock.Set(at(14, 0, 0))
	if _, err := env.matching.RunMatching(context.Background(), session, session.Rounds[0]); err != nil {
		t.Fatalf("matching: %v", err)
	}
	if env.repo.registration(t, pool[0].ID).Status != lifecycle.StatusMatched {
		t.Fatalf("expected pool to be matched")
	}

	updated, err := env.registrations.ConfirmAttendance(context.Background(), Principal{ParticipantID: "zed"}, late.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if updated.Status != lifecycle.StatusNoMatch || updated.NoMatchReason != ReasonConfirmedAfterMatching {
		t.Fatalf("expected late confirmation to become no-match, got %+v", updated)
	}
}

func TestUnregister(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	session := env.seedSession(t, sampleSession())
	alice := env.register(t, "alice")
	principal := Principal{ParticipantID: "alice"}

	cancelled, err := env.registrations.Unregister(context.Background(), principal, alice.ID)
	if err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if cancelled.Status != lifecycle.StatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("expected cancelled, got %+v", cancelled)
	}
	if _, err := env.registrations.Unregister(context.Background(), principal, alice.ID); err != nil {
		t.Fatalf("expected repeated cancel to succeed, got %v", err)
	}

	env.clock.Set(at(13, 20, 0))
	again := env.register(t, "alice")
	if again.Status != lifecycle.StatusRegistered || again.CancelledAt != nil {
		t.Fatalf("expected fresh registration after cancel, got %+v", again)
	}
	if !again.RegisteredAt.Equal(at(13, 20, 0)) {
		t.Fatalf("expected registered_at to restart, got %v", again.RegisteredAt)
	}

	pool := env.confirmedPool(t, 2)
	env.clock.Set(at(14, 0, 0))
	if _, err := env.matching.RunMatching(context.Background(), session, session.Rounds[0]); err != nil {
		t.Fatalf("matching: %v", err)
	}
	_, err = env.registrations.Unregister(context.Background(), Principal{ParticipantID: pool[0].Participant.ID}, pool[0].ID)
	if !errors.Is(err, ErrTooLateToCancel) {
		t.Fatalf("expected ErrTooLateToCancel, got %v", err)
	}
}

func TestGetRegistration_HidesVerificationHash(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	session := sampleSession()
	session.RequireEmailVerification = true
	env.seedSession(t, session)
	registration := env.register(t, "alice")

	got, err := env.registrations.GetRegistration(context.Background(), Principal{ParticipantID: "alice"}, registration.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.VerificationHash != "" {
		t.Fatalf("expected hash to be hidden")
	}
	if env.repo.registration(t, registration.ID).VerificationHash == "" {
		t.Fatalf("expected hash to remain stored")
	}
}

func TestRegistrationID_IsStable(t *testing.T) {
	t.Parallel()

	a := RegistrationID("s", "r", "p")
	if a != RegistrationID("s", "r", "p") {
		t.Fatalf("expected stable id")
	}
	if a == RegistrationID("s", "r", "q") || a == RegistrationID("s", "rp", "") {
		t.Fatalf("expected distinct ids for distinct inputs")
	}
}
