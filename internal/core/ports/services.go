package ports

import (
	"context"
	"encoding/json"
	"time"

	"carebridge/internal/core/domain"
)

// ConsultationService is the REST-facing surface used by providers and the intake flow.
type ConsultationService interface {
	CreateConsultation(ctx context.Context, triageSessionID domain.TriageSessionID, patientName string) (*domain.Consultation, error)
	GetConsultation(ctx context.Context, id domain.ConsultationID) (*domain.Consultation, error)
	ListQueue(ctx context.Context, now time.Time) ([]domain.QueueEntry, error)
	StartConsultation(ctx context.Context, id domain.ConsultationID, providerID domain.ParticipantID) (*domain.Call, error)
	EndConsultation(ctx context.Context, id domain.ConsultationID, notes string) error
}

type TriageService interface {
	RecordSession(ctx context.Context, input TriageInput) (*domain.TriageSession, error)
	GetSession(ctx context.Context, id domain.TriageSessionID) (*domain.TriageSession, error)
	UrgencyStats(ctx context.Context) (map[domain.Urgency]int, error)
}

type TriageInput struct {
	Urgency            string
	Summary            string
	RecommendedActions []string
	Confidence         float64
}

// SignalingService is what the realtime transport drives for each inbound event.
type SignalingService interface {
	Connect(ctx context.Context, id domain.ParticipantID, role domain.Role, ch domain.Channel) error
	Disconnect(ctx context.Context, id domain.ParticipantID, ch domain.Channel)
	ProviderReady(ctx context.Context, providerID domain.ParticipantID) error
	JoinWaitingRoom(ctx context.Context, consultationID domain.ConsultationID, patientID domain.ParticipantID) (*domain.Consultation, error)
	StartCall(ctx context.Context, consultationID domain.ConsultationID, providerID domain.ParticipantID) (*domain.Call, error)
	AcceptCall(ctx context.Context, callID domain.CallID, participantID domain.ParticipantID) error
	EndCall(ctx context.Context, callID domain.CallID, participantID domain.ParticipantID) error
	Forward(ctx context.Context, callID domain.CallID, from domain.ParticipantID, kind domain.SignalKind, payload json.RawMessage)
}

type MetricsRecorder interface {
	ParticipantConnected(role domain.Role)
	ParticipantDisconnected(role domain.Role)
	QueueDepth(byUrgency map[domain.Urgency]int)
	ConsultationCreated(urgency domain.Urgency)
	CallStarted()
	CallAccepted(setup time.Duration)
	CallEnded(reason domain.EndReason, duration time.Duration)
	SignalForwarded(kind domain.SignalKind)
	SignalDropped(kind domain.SignalKind, reason string)
}

// EventPublisher ships lifecycle events downstream. Publish must not block on the broker.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.LifecycleEvent) error
	Close() error
}
