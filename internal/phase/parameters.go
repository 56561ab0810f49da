package phase

import (
	"fmt"
	"time"
)

// Parameters holds the named window widths controlling round phases.
type Parameters struct {
	SafetyWindowMinutes       int `yaml:"safety_window_minutes"`
	ConfirmationWindowMinutes int `yaml:"confirmation_window_minutes"`
	WalkingTimeMinutes        int `yaml:"walking_time_minutes"`
}

// DefaultParameters returns the parameters used when no configuration is
// supplied.
func DefaultParameters() Parameters {
	return Parameters{
		SafetyWindowMinutes:       6,
		ConfirmationWindowMinutes: 5,
		WalkingTimeMinutes:        3,
	}
}

// SafetyWindow returns the registration cutoff before round start.
func (p Parameters) SafetyWindow() time.Duration {
	return time.Duration(p.SafetyWindowMinutes) * time.Minute
}

// ConfirmationWindow returns the attendance-confirmation window before start.
func (p Parameters) ConfirmationWindow() time.Duration {
	return time.Duration(p.ConfirmationWindowMinutes) * time.Minute
}

// WalkingTime returns the grace period after matching.
func (p Parameters) WalkingTime() time.Duration {
	return time.Duration(p.WalkingTimeMinutes) * time.Minute
}

// Warnings reports configuration problems. The parameters are still usable:
// Compute tolerates every combination, so callers surface these instead of
// correcting them.
func (p Parameters) Warnings() []string {
	var warnings []string
	if p.SafetyWindowMinutes < 0 {
		warnings = append(warnings, fmt.Sprintf("safety window is negative (%d minutes)", p.SafetyWindowMinutes))
	}
	if p.ConfirmationWindowMinutes < 0 {
		warnings = append(warnings, fmt.Sprintf("confirmation window is negative (%d minutes)", p.ConfirmationWindowMinutes))
	}
	if p.WalkingTimeMinutes < 0 {
		warnings = append(warnings, fmt.Sprintf("walking time is negative (%d minutes)", p.WalkingTimeMinutes))
	}
	if p.SafetyWindowMinutes < p.ConfirmationWindowMinutes {
		warnings = append(warnings, fmt.Sprintf(
			"safety window (%d minutes) is shorter than confirmation window (%d minutes); the safety window will be empty",
			p.SafetyWindowMinutes, p.ConfirmationWindowMinutes))
	}
	return warnings
}
