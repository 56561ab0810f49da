package matching

import (
	"errors"
	"math/rand/v2"
	"sort"
)

// Candidate is a confirmed participant eligible for a round.
type Candidate struct {
	ParticipantID  string
	RegistrationID string
	Team           string
	Topics         []string
}

// MeetingPoint is a place a group is sent to.
type MeetingPoint struct {
	ID      string
	Name    string
	Virtual bool
}

// Options configures a partition run.
type Options struct {
	GroupSize int
	// MaxGroups caps the number of groups. Zero means unlimited.
	MaxGroups int
	// MaxParticipants caps the number of placed participants. Zero means
	// unlimited.
	MaxParticipants int
	// TeamsExclusive keeps members of the same team out of the same group.
	TeamsExclusive bool
	// TopicsRequireOverlap requires every group to share at least one
	// topic among members who selected topics.
	TopicsRequireOverlap bool
	MeetingPoints        []MeetingPoint
	// Rand drives the shuffle. Nil uses the global source.
	Rand *rand.Rand
}

// Group is one planned match.
type Group struct {
	Members      []Candidate
	MeetingPoint *MeetingPoint
	Topic        string
}

// Leftover is a candidate that could not be placed.
type Leftover struct {
	Candidate Candidate
	Reason    string
}

// Plan is the output of Partition.
type Plan struct {
	Groups    []Group
	Leftovers []Leftover
}

// Placed returns the number of candidates assigned to a group.
func (p Plan) Placed() int {
	total := 0
	for _, g := range p.Groups {
		total += len(g.Members)
	}
	return total
}

const (
	ReasonNoPartner         = "no other confirmed participant was available for this round"
	ReasonNoCompatibleGroup = "no group could be formed without mixing incompatible team or topic selections"
	ReasonParticipantCap    = "the round reached its participant limit"
	ReasonGroupCap          = "the round reached its group limit"
)

// ErrInvalidGroupSize is returned when the group size is below one.
var ErrInvalidGroupSize = errors.New("matching: group size must be at least 1")

// Partition shuffles the candidates and splits them into groups.
//
// Groups are filled in shuffle order. A trailing group of one is merged into
// an earlier compatible group unless the group size itself is one, so the
// last group may hold GroupSize+1 members. A candidate that fits nowhere
// without breaking a constraint becomes a Leftover; incompatible members are
// never grouped together.
func Partition(candidates []Candidate, opts Options) (Plan, error) {
	if opts.GroupSize < 1 {
		return Plan{}, ErrInvalidGroupSize
	}

	pool := make([]Candidate, len(candidates))
	copy(pool, candidates)
	shuffle(pool, opts.Rand)

	var plan Plan
	if opts.MaxParticipants > 0 && len(pool) > opts.MaxParticipants {
		for _, c := range pool[opts.MaxParticipants:] {
			plan.Leftovers = append(plan.Leftovers, Leftover{Candidate: c, Reason: ReasonParticipantCap})
		}
		pool = pool[:opts.MaxParticipants]
	}

	groups := make([]*groupState, 0, len(pool)/opts.GroupSize+1)
	for _, c := range pool {
		placed := false
		for _, g := range groups {
			if len(g.members) < opts.GroupSize && g.accepts(c, opts) {
				g.add(c)
				placed = true
				break
			}
		}
		if !placed {
			g := newGroupState()
			g.add(c)
			groups = append(groups, g)
		}
	}

	if opts.GroupSize > 1 {
		groups = mergeSingletons(groups, opts, &plan)
	}

	if opts.MaxGroups > 0 && len(groups) > opts.MaxGroups {
		for _, g := range groups[opts.MaxGroups:] {
			for _, c := range g.members {
				plan.Leftovers = append(plan.Leftovers, Leftover{Candidate: c, Reason: ReasonGroupCap})
			}
		}
		groups = groups[:opts.MaxGroups]
	}

	for i, g := range groups {
		group := Group{Members: g.members, Topic: g.topic(opts)}
		if len(opts.MeetingPoints) > 0 {
			point := opts.MeetingPoints[i%len(opts.MeetingPoints)]
			group.MeetingPoint = &point
		}
		plan.Groups = append(plan.Groups, group)
	}
	return plan, nil
}

// mergeSingletons folds every group of one into the latest compatible
// group that still has room. A group takes at most one extra member, so no
// group grows past GroupSize+1. Singletons with no such home become
// leftovers.
func mergeSingletons(groups []*groupState, opts Options, plan *Plan) []*groupState {
	kept := make([]*groupState, 0, len(groups))
	var singles []Candidate
	for _, g := range groups {
		if len(g.members) == 1 {
			singles = append(singles, g.members[0])
			continue
		}
		kept = append(kept, g)
	}

	for _, c := range singles {
		placed := false
		for i := len(kept) - 1; i >= 0; i-- {
			if len(kept[i].members) <= opts.GroupSize && kept[i].accepts(c, opts) {
				kept[i].add(c)
				placed = true
				break
			}
		}
		if placed {
			continue
		}
		reason := ReasonNoPartner
		if opts.TeamsExclusive || opts.TopicsRequireOverlap {
			if len(kept) > 0 || len(singles) > 1 {
				reason = ReasonNoCompatibleGroup
			}
		}
		plan.Leftovers = append(plan.Leftovers, Leftover{Candidate: c, Reason: reason})
	}
	return kept
}

type groupState struct {
	members []Candidate
	teams   map[string]struct{}
	// shared is the topic intersection of members who chose topics. Nil
	// means no member has chosen a topic yet.
	shared map[string]struct{}
}

func newGroupState() *groupState {
	return &groupState{teams: make(map[string]struct{})}
}

func (g *groupState) accepts(c Candidate, opts Options) bool {
	if opts.TeamsExclusive && c.Team != "" {
		if _, clash := g.teams[c.Team]; clash {
			return false
		}
	}
	if opts.TopicsRequireOverlap && len(c.Topics) > 0 && g.shared != nil {
		if len(intersect(g.shared, c.Topics)) == 0 {
			return false
		}
	}
	return true
}

func (g *groupState) add(c Candidate) {
	g.members = append(g.members, c)
	if c.Team != "" {
		g.teams[c.Team] = struct{}{}
	}
	if len(c.Topics) == 0 {
		return
	}
	if g.shared == nil {
		g.shared = make(map[string]struct{}, len(c.Topics))
		for _, topic := range c.Topics {
			g.shared[topic] = struct{}{}
		}
		return
	}
	g.shared = intersect(g.shared, c.Topics)
}

func (g *groupState) topic(opts Options) string {
	if !opts.TopicsRequireOverlap || len(g.shared) == 0 {
		return ""
	}
	topics := make([]string, 0, len(g.shared))
	for topic := range g.shared {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics[0]
}

func intersect(set map[string]struct{}, values []string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, v := range values {
		if _, ok := set[v]; ok {
			out[v] = struct{}{}
		}
	}
	return out
}

func shuffle(pool []Candidate, r *rand.Rand) {
	swap := func(i, j int) { pool[i], pool[j] = pool[j], pool[i] }
	if r == nil {
		rand.Shuffle(len(pool), swap)
		return
	}
	r.Shuffle(len(pool), swap)
}
