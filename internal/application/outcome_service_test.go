package application

import (
	"context"
	"errors"
	"testing"

	"github.com/example/networking-rounds/internal/lifecycle"
)

// matchedPairs confirms four participants and runs matching at 14:00,
// returning the two planned groups.
func matchedPairs(t *testing.T, env *testEnv) (Session, []PlannedGroup) {
	t.Helper()
	session := env.seedSession(t, sampleSession())
	env.confirmedPool(t, 4)
	env.clock.Set(at(14, 0, 0))
	plan, err := env.matching.RunMatching(context.Background(), session, session.Rounds[0])
	if err != nil {
		t.Fatalf("matching: %v", err)
	}
	if len(plan.Groups) != 2 {
		t.Fatalf("expected two pairs, got %d groups", len(plan.Groups))
	}
	return session, plan.Groups
}

func TestCheckIn(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	_, groups := matchedPairs(t, env)
	member := groups[0].Members[0]
	principal := Principal{ParticipantID: member.ParticipantID}

	env.clock.Set(at(14, 2, 0))
	registration, err := env.outcomes.CheckIn(context.Background(), principal, groups[0].MatchID)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if registration.Status != lifecycle.StatusCheckedIn || registration.CheckedInAt == nil {
		t.Fatalf("expected checked in, got %+v", registration)
	}

	match, err := env.repo.GetMatch(context.Background(), groups[0].MatchID)
	if err != nil {
		t.Fatalf("load match: %v", err)
	}
	entry, _ := match.Member(member.ParticipantID)
	if entry.Status != lifecycle.StatusCheckedIn || entry.CheckedInAt == nil {
		t.Fatalf("expected member entry to be updated, got %+v", entry)
	}

	env.clock.Set(at(14, 3, 0))
	again, err := env.outcomes.CheckIn(context.Background(), principal, groups[0].MatchID)
	if err != nil {
		t.Fatalf("repeat check in: %v", err)
	}
	if !again.CheckedInAt.Equal(at(14, 2, 0)) {
		t.Fatalf("expected the first check-in time to be kept, got %v", again.CheckedInAt)
	}
}

func TestCheckIn_Rejections(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	_, groups := matchedPairs(t, env)
	member := groups[0].Members[0]
	outsider := groups[1].Members[0]

	if _, err := env.outcomes.CheckIn(context.Background(), Principal{ParticipantID: outsider.ParticipantID}, groups[0].MatchID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for a non-member, got %v", err)
	}
	if _, err := env.outcomes.CheckIn(context.Background(), Principal{}, groups[0].MatchID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized without identity, got %v", err)
	}
	if _, err := env.outcomes.CheckIn(context.Background(), Principal{ParticipantID: member.ParticipantID}, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	env.clock.Set(at(14, 15, 0))
	if _, err := env.outcomes.CheckIn(context.Background(), Principal{ParticipantID: member.ParticipantID}, groups[0].MatchID); !errors.Is(err, ErrCheckInClosed) {
		t.Fatalf("expected ErrCheckInClosed after the round, got %v", err)
	}
}

func TestConfirmPartnerMet(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	_, groups := matchedPairs(t, env)
	member := groups[0].Members[1]

	env.clock.Set(at(14, 6, 0))
	registration, err := env.outcomes.ConfirmPartnerMet(context.Background(), Principal{ParticipantID: member.ParticipantID}, groups[0].MatchID)
	if err != nil {
		t.Fatalf("partner met: %v", err)
	}
	if registration.Status != lifecycle.StatusMet || registration.MetAt == nil {
		t.Fatalf("expected met, got %+v", registration)
	}

	// Checking in after meeting is a no-op rather than a step back.
	again, err := env.outcomes.CheckIn(context.Background(), Principal{ParticipantID: member.ParticipantID}, groups[0].MatchID)
	if err != nil {
		t.Fatalf("check in after met: %v", err)
	}
	if again.Status != lifecycle.StatusMet {
		t.Fatalf("expected status to stay met, got %s", again.Status)
	}
}

func TestRecordRoundOutcomes(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	session, groups := matchedPairs(t, env)
	round := session.Rounds[0]

	env.clock.Set(at(14, 4, 0))
	for _, member := range groups[0].Members {
		if _, err := env.outcomes.CheckIn(context.Background(), Principal{ParticipantID: member.ParticipantID}, groups[0].MatchID); err != nil {
			t.Fatalf("check in: %v", err)
		}
	}
	lonely := groups[1].Members[0]
	absent := groups[1].Members[1]
	if _, err := env.outcomes.CheckIn(context.Background(), Principal{ParticipantID: lonely.ParticipantID}, groups[1].MatchID); err != nil {
		t.Fatalf("check in: %v", err)
	}

	env.clock.Set(at(14, 16, 0))
	if err := env.outcomes.RecordRoundOutcomes(context.Background(), session, round); err != nil {
		t.Fatalf("record outcomes: %v", err)
	}

	want := map[string]lifecycle.Status{
		groups[0].Members[0].RegistrationID: lifecycle.StatusMet,
		groups[0].Members[1].RegistrationID: lifecycle.StatusMet,
		lonely.RegistrationID:               lifecycle.StatusLeftAlone,
		absent.RegistrationID:               lifecycle.StatusMissed,
	}
	for id, status := range want {
		if got := env.repo.registration(t, id).Status; got != status {
			t.Fatalf("registration %s: got %s, want %s", id, got, status)
		}
	}

	recorded, err := env.outcomes.outcomesRecorded(context.Background(), session, round)
	if err != nil || !recorded {
		t.Fatalf("expected outcomes to be marked recorded, got %v, %v", recorded, err)
	}

	saves := env.repo.planSaves
	if err := env.outcomes.RecordRoundOutcomes(context.Background(), session, round); err != nil {
		t.Fatalf("repeat record outcomes: %v", err)
	}
	if env.repo.planSaves != saves {
		t.Fatalf("expected the repeat to write nothing")
	}
}

func TestRecordRoundOutcomes_WithoutPlan(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	session := env.seedSession(t, sampleSession())
	env.clock.Set(at(14, 16, 0))

	if err := env.outcomes.RecordRoundOutcomes(context.Background(), session, session.Rounds[0]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound without a plan, got %v", err)
	}
}
