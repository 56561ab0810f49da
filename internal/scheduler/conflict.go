package scheduler

import (
	"sort"
	"time"
)

// Slot is a timed round within a session.
type Slot struct {
	ID    string
	Start time.Time
	End   time.Time
}

// ConflictType describes the type of conflict detected between slots.
type ConflictType string

const (
	// ConflictTypeOverlap indicates two rounds share part of their time range.
	ConflictTypeOverlap ConflictType = "overlap"
	// ConflictTypeOrder indicates rounds are not listed in chronological order.
	ConflictTypeOrder ConflictType = "order"
)

// Conflict details a pair of slots that violate the session layout.
type Conflict struct {
	SlotID     string
	WithSlotID string
	Type       ConflictType
}

// DetectConflicts checks that the slots are listed chronologically and that
// no two slots overlap. Touching slots (one ends when the next starts) are
// allowed.
func DetectConflicts(slots []Slot) []Conflict {
	var conflicts []Conflict

	for i := 1; i < len(slots); i++ {
		if slots[i].Start.Before(slots[i-1].Start) {
			conflicts = append(conflicts, Conflict{SlotID: slots[i].ID, WithSlotID: slots[i-1].ID, Type: ConflictTypeOrder})
		}
	}

	ordered := make([]Slot, len(slots))
	copy(ordered, slots)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start.Before(ordered[j].Start)
	})

	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if !ordered[j].Start.Before(ordered[i].End) {
				break
			}
			conflicts = append(conflicts, Conflict{SlotID: ordered[j].ID, WithSlotID: ordered[i].ID, Type: ConflictTypeOverlap})
		}
	}

	return conflicts
}
