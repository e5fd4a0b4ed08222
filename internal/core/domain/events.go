package domain

import (
	"encoding/json"
	"time"
)

type EventType string

// Inbound, client to server.
const (
	EventProviderReady      EventType = "providerReady"
	EventJoinWaitingRoom    EventType = "joinWaitingRoom"
	EventStartCall          EventType = "startCall"
	EventAcceptCall         EventType = "acceptCall"
	EventEndCall            EventType = "endCall"
	EventWebRTCOffer        EventType = "webrtcOffer"
	EventWebRTCAnswer       EventType = "webrtcAnswer"
	EventWebRTCIceCandidate EventType = "webrtcIceCandidate"
)

// Outbound, server to client.
const (
	EventQueueUpdated      EventType = "queueUpdated"
	EventIncomingCall      EventType = "incomingCall"
	EventCallAccepted      EventType = "callAccepted"
	EventCallEnded         EventType = "callEnded"
	EventWaitingRoomJoined EventType = "waitingRoomJoined"
	EventCallStarted       EventType = "callStarted"
	EventError             EventType = "error"
)

// Envelope is the single wire format on the signaling channel, both directions.
type Envelope struct {
	Type           EventType       `json:"type"`
	CallID         CallID          `json:"callId,omitempty"`
	ConsultationID ConsultationID  `json:"consultationId,omitempty"`
	ProviderID     ParticipantID   `json:"providerId,omitempty"`
	CallerType     Role            `json:"callerType,omitempty"`
	Offerer        ParticipantID   `json:"offerer,omitempty"`
	TriageData     json.RawMessage `json:"triageData,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Reason         EndReason       `json:"reason,omitempty"`
	Code           string          `json:"code,omitempty"`
	Message        string          `json:"message,omitempty"`
}

// SignalKind is the opaque signaling payload class routed by the relay.
type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalIceCandidate SignalKind = "ice_candidate"
)

func (k SignalKind) EventType() EventType {
	switch k {
	case SignalOffer:
		return EventWebRTCOffer
	case SignalAnswer:
		return EventWebRTCAnswer
	default:
		return EventWebRTCIceCandidate
	}
}

// SignalKindFor maps an inbound event to its signal kind.
func SignalKindFor(t EventType) (SignalKind, bool) {
	switch t {
	case EventWebRTCOffer:
		return SignalOffer, true
	case EventWebRTCAnswer:
		return SignalAnswer, true
	case EventWebRTCIceCandidate:
		return SignalIceCandidate, true
	default:
		return "", false
	}
}

type LifecycleEventType string

const (
	LifecycleConsultationCreated LifecycleEventType = "consultation.created"
	LifecycleCallStarted         LifecycleEventType = "call.started"
	LifecycleCallAccepted        LifecycleEventType = "call.accepted"
	LifecycleCallEnded           LifecycleEventType = "call.ended"
)

// LifecycleEvent is published to downstream consumers; it carries no clinical data.
type LifecycleEvent struct {
	Type           LifecycleEventType `json:"type"`
	ConsultationID ConsultationID     `json:"consultation_id"`
	CallID         CallID             `json:"call_id,omitempty"`
	ProviderID     ParticipantID      `json:"provider_id,omitempty"`
	Urgency        Urgency            `json:"urgency_level,omitempty"`
	Reason         EndReason          `json:"reason,omitempty"`
	OccurredAt     time.Time          `json:"occurred_at"`
}
