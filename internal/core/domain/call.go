package domain

import "time"

type CallID string

type CallState string

const (
	CallConnecting CallState = "connecting"
	CallActive     CallState = "active"
	CallEnded      CallState = "ended"
)

type EndReason string

const (
	EndReasonHangup            EndReason = "hangup"
	EndReasonDisconnect        EndReason = "disconnect"
	EndReasonUnreachable       EndReason = "unreachable"
	EndReasonTimeout           EndReason = "timeout"
	EndReasonConsultationEnded EndReason = "consultation_ended"
	EndReasonShutdown          EndReason = "shutdown"
)

// Call binds one patient and one provider to a consultation.
// The provider always sends the media offer; the patient answers.
type Call struct {
	ID             CallID         `json:"id"`
	ConsultationID ConsultationID `json:"consultation_id"`
	PatientID      ParticipantID  `json:"patient_id"`
	ProviderID     ParticipantID  `json:"provider_id"`
	State          CallState      `json:"state"`
	CreatedAt      time.Time      `json:"created_at"`
	AcceptedAt     *time.Time     `json:"accepted_at,omitempty"`
	EndedAt        *time.Time     `json:"ended_at,omitempty"`
	EndReason      EndReason      `json:"end_reason,omitempty"`
}

// CanTransition reports whether the call state machine allows moving to next.
func (c *Call) CanTransition(next CallState) bool {
	switch c.State {
	case CallConnecting:
		return next == CallActive || next == CallEnded
	case CallActive:
		return next == CallEnded
	default:
		return false
	}
}

func (c *Call) Involves(id ParticipantID) bool {
	return id == c.PatientID || id == c.ProviderID
}

// Counterpart returns the other party of the call.
func (c *Call) Counterpart(id ParticipantID) (ParticipantID, bool) {
	switch id {
	case c.PatientID:
		return c.ProviderID, true
	case c.ProviderID:
		return c.PatientID, true
	default:
		return "", false
	}
}

// Offerer is the participant that creates the SDP offer.
func (c *Call) Offerer() ParticipantID {
	return c.ProviderID
}
