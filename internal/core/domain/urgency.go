package domain

import (
	"fmt"
	"strings"
)

// Urgency is supplied by the external triage step and never changes afterwards.
type Urgency string

const (
	UrgencyEmergency Urgency = "Emergency"
	UrgencyUrgent    Urgency = "Urgent"
	UrgencyRoutine   Urgency = "Routine"
	UrgencySelfCare  Urgency = "Self-Care"
)

// Urgencies lists levels from most to least urgent.
var Urgencies = []Urgency{UrgencyEmergency, UrgencyUrgent, UrgencyRoutine, UrgencySelfCare}

// Rank orders urgencies; lower is more urgent.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyEmergency:
		return 0
	case UrgencyUrgent:
		return 1
	case UrgencyRoutine:
		return 2
	case UrgencySelfCare:
		return 3
	default:
		return len(Urgencies)
	}
}

func (u Urgency) Valid() bool {
	return u.Rank() < len(Urgencies)
}

// ParseUrgency accepts the canonical names case-insensitively ("self-care", "SELF_CARE").
func ParseUrgency(s string) (Urgency, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for _, u := range Urgencies {
		if strings.ToLower(string(u)) == norm {
			return u, nil
		}
	}
	return "", fmt.Errorf("unknown urgency level %q", s)
}
