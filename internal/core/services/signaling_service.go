package services

import (
	"context"
	"encoding/json"

	"carebridge/internal/core/domain"
	"carebridge/pkg/errors"

	"go.uber.org/zap"
)

// SignalingService is the entry point of the realtime channel. It wires
// disconnects from the registry into the call coordinator.
type SignalingService struct {
	registry *SessionRegistry
	queue    *QueueManager
	calls    *CallCoordinator
	relay    *SignalingRelay
	logger   *zap.SugaredLogger
}

func NewSignalingService(
	registry *SessionRegistry,
	queue *QueueManager,
	calls *CallCoordinator,
	relay *SignalingRelay,
	logger *zap.SugaredLogger,
) *SignalingService {
	registry.OnUnregister(calls.HandleDisconnect)
	return &SignalingService{
		registry: registry,
		queue:    queue,
		calls:    calls,
		relay:    relay,
		logger:   logger,
	}
}

func (s *SignalingService) Connect(ctx context.Context, id domain.ParticipantID, role domain.Role, ch domain.Channel) error {
	return s.registry.Register(ctx, id, role, ch)
}

func (s *SignalingService) Disconnect(ctx context.Context, id domain.ParticipantID, ch domain.Channel) {
	s.registry.Unregister(ctx, id, ch)
}

// ProviderReady marks the provider available and prompts it to fetch the queue.
func (s *SignalingService) ProviderReady(ctx context.Context, providerID domain.ParticipantID) error {
	if err := s.registry.SetAvailable(providerID, true); err != nil {
		return err
	}
	ch, err := s.registry.Lookup(providerID)
	if err != nil {
		return err
	}
	return ch.Send(domain.Envelope{Type: domain.EventQueueUpdated})
}

// JoinWaitingRoom confirms a patient's connection belongs to consultationID.
func (s *SignalingService) JoinWaitingRoom(ctx context.Context, consultationID domain.ConsultationID, patientID domain.ParticipantID) (*domain.Consultation, error) {
	if consultationID == "" {
		return nil, errors.NewInvalidInputError("consultation id is required")
	}
	c, err := s.queue.Get(ctx, consultationID)
	if err != nil {
		return nil, err
	}
	if c.PatientID != patientID {
		return nil, errors.NewInvalidInputError("participant is not the patient of this consultation")
	}
	if c.Status == domain.ConsultationCompleted {
		return nil, errors.NewInvalidStateError("consultation already completed")
	}
	return c, nil
}

func (s *SignalingService) StartCall(ctx context.Context, consultationID domain.ConsultationID, providerID domain.ParticipantID) (*domain.Call, error) {
	return s.calls.StartCall(ctx, consultationID, providerID)
}

func (s *SignalingService) AcceptCall(ctx context.Context, callID domain.CallID, participantID domain.ParticipantID) error {
	return s.calls.AcceptCall(ctx, callID, participantID)
}

func (s *SignalingService) EndCall(ctx context.Context, callID domain.CallID, participantID domain.ParticipantID) error {
	return s.calls.EndCall(ctx, callID, participantID)
}

func (s *SignalingService) Forward(ctx context.Context, callID domain.CallID, from domain.ParticipantID, kind domain.SignalKind, payload json.RawMessage) {
	s.relay.Forward(ctx, callID, from, kind, payload)
}
