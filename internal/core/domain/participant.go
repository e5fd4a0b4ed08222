package domain

import (
	"fmt"
	"time"
)

type ParticipantID string

type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePatient, RoleProvider:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown participant role %q", s)
	}
}

// Channel is the transport handle of one connected participant.
// Send must not block: implementations queue the message and deliver it
// in order on their own writer.
type Channel interface {
	Send(msg Envelope) error
	Close()
}

type Participant struct {
	ID          ParticipantID `json:"id"`
	Role        Role          `json:"role"`
	Available   bool          `json:"available"`
	ConnectedAt time.Time     `json:"connected_at"`
}
