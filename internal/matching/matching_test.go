package matching

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"testing"
)

func candidates(n int) []Candidate {
	out := make([]Candidate, n)
	for i := range out {
		out[i] = Candidate{
			ParticipantID:  fmt.Sprintf("participant-%d", i+1),
			RegistrationID: fmt.Sprintf("registration-%d", i+1),
		}
	}
	return out
}

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed*31+7))
}

func groupSizes(plan Plan) []int {
	sizes := make([]int, 0, len(plan.Groups))
	for _, g := range plan.Groups {
		sizes = append(sizes, len(g.Members))
	}
	sort.Ints(sizes)
	return sizes
}

func TestPartition_SevenIntoPairsMergesTrailingSingleton(t *testing.T) {
	t.Parallel()

	for seed := uint64(1); seed <= 20; seed++ {
		plan, err := Partition(candidates(7), Options{GroupSize: 2, Rand: seeded(seed)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := groupSizes(plan); fmt.Sprint(got) != "[2 2 3]" {
			t.Fatalf("seed %d: expected sizes [2 2 3], got %v", seed, got)
		}
		if plan.Placed() != 7 || len(plan.Leftovers) != 0 {
			t.Fatalf("seed %d: expected all 7 placed, got placed=%d leftovers=%d", seed, plan.Placed(), len(plan.Leftovers))
		}
	}
}

func TestPartition_EveryCandidateAppearsOnce(t *testing.T) {
	t.Parallel()

	for n := 0; n <= 25; n++ {
		for size := 1; size <= 5; size++ {
			plan, err := Partition(candidates(n), Options{GroupSize: size, Rand: seeded(uint64(n*10 + size))})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			seen := make(map[string]int)
			for _, g := range plan.Groups {
				if size > 1 && len(g.Members) == 1 {
					t.Fatalf("n=%d size=%d: singleton group produced", n, size)
				}
				if len(g.Members) > size+1 {
					t.Fatalf("n=%d size=%d: oversized group of %d", n, size, len(g.Members))
				}
				for _, m := range g.Members {
					seen[m.ParticipantID]++
				}
			}
			for _, l := range plan.Leftovers {
				seen[l.Candidate.ParticipantID]++
			}
			if len(seen) != n {
				t.Fatalf("n=%d size=%d: expected %d distinct participants, saw %d", n, size, n, len(seen))
			}
			for id, count := range seen {
				if count != 1 {
					t.Fatalf("n=%d size=%d: %s appears %d times", n, size, id, count)
				}
			}
		}
	}
}

func TestPartition_LoneParticipantIsLeftOver(t *testing.T) {
	t.Parallel()

	plan, err := Partition(candidates(1), Options{GroupSize: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Groups) != 0 || len(plan.Leftovers) != 1 {
		t.Fatalf("expected one leftover, got %+v", plan)
	}
	if plan.Leftovers[0].Reason != ReasonNoPartner {
		t.Fatalf("unexpected reason %q", plan.Leftovers[0].Reason)
	}
}

func TestPartition_GroupSizeOneAllowsSingletons(t *testing.T) {
	t.Parallel()

	plan, err := Partition(candidates(3), Options{GroupSize: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := groupSizes(plan); fmt.Sprint(got) != "[1 1 1]" {
		t.Fatalf("expected three singleton groups, got %v", got)
	}
}

func TestPartition_RejectsInvalidGroupSize(t *testing.T) {
	t.Parallel()

	if _, err := Partition(candidates(3), Options{GroupSize: 0}); !errors.Is(err, ErrInvalidGroupSize) {
		t.Fatalf("expected ErrInvalidGroupSize, got %v", err)
	}
}

func TestPartition_MeetingPointsRoundRobin(t *testing.T) {
	t.Parallel()

	points := []MeetingPoint{{ID: "mp-a", Name: "Lobby"}, {ID: "mp-b", Name: "Video", Virtual: true}}
	plan, err := Partition(candidates(10), Options{GroupSize: 2, MeetingPoints: points, Rand: seeded(3)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Groups) != 5 {
		t.Fatalf("expected 5 groups, got %d", len(plan.Groups))
	}
	for i, g := range plan.Groups {
		if g.MeetingPoint == nil || g.MeetingPoint.ID != points[i%2].ID {
			t.Fatalf("group %d assigned %+v, want %s", i, g.MeetingPoint, points[i%2].ID)
		}
	}

	bare, err := Partition(candidates(4), Options{GroupSize: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, g := range bare.Groups {
		if g.MeetingPoint != nil {
			t.Fatalf("expected no meeting point without configured points")
		}
	}
}

func TestPartition_TeamsExclusiveNeverMixesTeammates(t *testing.T) {
	t.Parallel()

	pool := candidates(9)
	for i := range pool {
		pool[i].Team = []string{"red", "blue", "green"}[i%3]
	}

	for seed := uint64(1); seed <= 30; seed++ {
		plan, err := Partition(pool, Options{GroupSize: 2, TeamsExclusive: true, Rand: seeded(seed)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, g := range plan.Groups {
			teams := make(map[string]bool)
			for _, m := range g.Members {
				if teams[m.Team] {
					t.Fatalf("seed %d: group mixes teammates from %s: %+v", seed, m.Team, g.Members)
				}
				teams[m.Team] = true
			}
		}
		if plan.Placed()+len(plan.Leftovers) != len(pool) {
			t.Fatalf("seed %d: lost participants", seed)
		}
	}
}

func TestPartition_IncompatibleLeftoverBecomesNoMatch(t *testing.T) {
	t.Parallel()

	pool := candidates(3)
	for i := range pool {
		pool[i].Team = "solo"
	}
	plan, err := Partition(pool, Options{GroupSize: 2, TeamsExclusive: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Groups) != 0 || len(plan.Leftovers) != 3 {
		t.Fatalf("expected all three to be left over, got %+v", plan)
	}
	for _, l := range plan.Leftovers {
		if l.Reason != ReasonNoCompatibleGroup {
			t.Fatalf("unexpected reason %q", l.Reason)
		}
	}
}

func TestPartition_TopicsRequireOverlap(t *testing.T) {
	t.Parallel()

	pool := []Candidate{
		{ParticipantID: "a", Topics: []string{"go", "rust"}},
		{ParticipantID: "b", Topics: []string{"go"}},
		{ParticipantID: "c", Topics: []string{"design"}},
		{ParticipantID: "d", Topics: []string{"design", "ux"}},
		{ParticipantID: "e"},
	}

	for seed := uint64(1); seed <= 30; seed++ {
		plan, err := Partition(pool, Options{GroupSize: 2, TopicsRequireOverlap: true, Rand: seeded(seed)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, g := range plan.Groups {
			var shared map[string]bool
			for _, m := range g.Members {
				if len(m.Topics) == 0 {
					continue
				}
				next := make(map[string]bool)
				for _, topic := range m.Topics {
					if shared == nil || shared[topic] {
						next[topic] = true
					}
				}
				shared = next
			}
			if shared != nil && len(shared) == 0 {
				t.Fatalf("seed %d: group without common topic: %+v", seed, g.Members)
			}
			if shared != nil && !shared[g.Topic] {
				t.Fatalf("seed %d: group topic %q not shared by members", seed, g.Topic)
			}
		}
	}
}

func TestPartition_Caps(t *testing.T) {
	t.Parallel()

	plan, err := Partition(candidates(10), Options{GroupSize: 2, MaxParticipants: 6, Rand: seeded(9)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Placed() != 6 || len(plan.Leftovers) != 4 {
		t.Fatalf("expected 6 placed and 4 leftovers, got %d/%d", plan.Placed(), len(plan.Leftovers))
	}
	for _, l := range plan.Leftovers {
		if l.Reason != ReasonParticipantCap {
			t.Fatalf("unexpected reason %q", l.Reason)
		}
	}

	plan, err = Partition(candidates(10), Options{GroupSize: 2, MaxGroups: 2, Rand: seeded(9)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Groups) != 2 || len(plan.Leftovers) != 6 {
		t.Fatalf("expected 2 groups and 6 leftovers, got %d/%d", len(plan.Groups), len(plan.Leftovers))
	}
}

func TestPartition_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	pool := candidates(6)
	before := fmt.Sprint(pool)
	if _, err := Partition(pool, Options{GroupSize: 3, Rand: seeded(4)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fmt.Sprint(pool) != before {
		t.Fatalf("input slice was reordered")
	}
}

func TestMergeSingletons_CapsGroupAtOneExtraMember(t *testing.T) {
	opts := Options{GroupSize: 2, TeamsExclusive: true}

	pair := newGroupState()
	pair.add(Candidate{ParticipantID: "x", Team: "red"})
	pair.add(Candidate{ParticipantID: "y", Team: "blue"})
	first := newGroupState()
	first.add(Candidate{ParticipantID: "a", Team: "green"})
	second := newGroupState()
	second.add(Candidate{ParticipantID: "b", Team: "yellow"})

	var plan Plan
	kept := mergeSingletons([]*groupState{pair, first, second}, opts, &plan)

	if len(kept) != 1 || len(kept[0].members) != 3 {
		t.Fatalf("expected one group of three, got %d groups", len(kept))
	}
	if len(plan.Leftovers) != 1 {
		t.Fatalf("expected one leftover, got %+v", plan.Leftovers)
	}
	if got := plan.Leftovers[0]; got.Candidate.ParticipantID != "b" || got.Reason != ReasonNoCompatibleGroup {
		t.Fatalf("unexpected leftover %+v", got)
	}
}

func TestPartition_ConstrainedGroupsNeverExceedOneExtraMember(t *testing.T) {
	teams := []string{"red", "red", "red", "blue", "green", "", ""}
	topics := [][]string{{"go"}, {"rust"}, nil, {"go", "rust"}, {"java"}, {"go"}, nil}

	pool := make([]Candidate, 0, len(teams)*2)
	for i := 0; i < len(teams)*2; i++ {
		pool = append(pool, Candidate{
			ParticipantID:  fmt.Sprintf("p%d", i),
			RegistrationID: fmt.Sprintf("r%d", i),
			Team:           teams[i%len(teams)],
			Topics:         topics[(i*3)%len(topics)],
		})
	}

	for seed := uint64(1); seed <= 200; seed++ {
		plan, err := Partition(pool, Options{GroupSize: 2, TeamsExclusive: true, TopicsRequireOverlap: true, Rand: seeded(seed)})
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		for _, g := range plan.Groups {
			if len(g.Members) > 3 {
				t.Fatalf("seed %d: group of %d exceeds GroupSize+1", seed, len(g.Members))
			}
		}
		if got := plan.Placed() + len(plan.Leftovers); got != len(pool) {
			t.Fatalf("seed %d: %d candidates accounted for, want %d", seed, got, len(pool))
		}
	}
}
