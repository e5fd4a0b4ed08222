package services

import (
	"context"
	"time"

	"carebridge/internal/core/domain"
	"carebridge/internal/core/ports"
	"carebridge/pkg/errors"
	"carebridge/pkg/utils"
	"carebridge/pkg/validation"

	"go.uber.org/zap"
)

type ConsultationService struct {
	triage  ports.TriageRepository
	queue   *QueueManager
	calls   *CallCoordinator
	events  ports.EventPublisher
	metrics ports.MetricsRecorder
	logger  *zap.SugaredLogger
	now     func() time.Time
}

func NewConsultationService(
	triage ports.TriageRepository,
	queue *QueueManager,
	calls *CallCoordinator,
	events ports.EventPublisher,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
) *ConsultationService {
	return &ConsultationService{
		triage:  triage,
		queue:   queue,
		calls:   calls,
		events:  publisherOrNoop(events),
		metrics: metricsOrNoop(metrics),
		logger:  logger,
		now:     time.Now,
	}
}

// CreateConsultation queues a patient using the urgency and summary of a
// recorded triage session.
func (s *ConsultationService) CreateConsultation(ctx context.Context, triageSessionID domain.TriageSessionID, patientName string) (*domain.Consultation, error) {
	if err := validation.ValidateID(string(triageSessionID), "triage_session_id"); err != nil {
		return nil, errors.NewInvalidInputError(err.Error())
	}
	patientName = utils.SanitizeString(patientName)
	if err := validation.ValidatePatientName(patientName); err != nil {
		return nil, errors.NewInvalidInputError(err.Error())
	}

	session, err := s.triage.GetByID(ctx, triageSessionID)
	if err != nil {
		return nil, err
	}

	consultation := &domain.Consultation{
		ID:              domain.ConsultationID(utils.GenerateConsultationID()),
		PatientID:       domain.ParticipantID(utils.GeneratePatientID()),
		PatientName:     patientName,
		TriageSessionID: session.ID,
		TriageSummary:   session.Summary,
		Urgency:         session.Urgency,
		Status:          domain.ConsultationWaiting,
		CreatedAt:       s.now(),
	}
	if err := s.queue.Enqueue(ctx, consultation); err != nil {
		return nil, err
	}

	s.metrics.ConsultationCreated(consultation.Urgency)
	if err := s.events.Publish(ctx, domain.LifecycleEvent{
		Type:           domain.LifecycleConsultationCreated,
		ConsultationID: consultation.ID,
		Urgency:        consultation.Urgency,
		OccurredAt:     consultation.CreatedAt,
	}); err != nil {
		s.logger.Warnw("Failed to publish lifecycle event", "type", domain.LifecycleConsultationCreated, "error", err)
	}

	return consultation, nil
}

func (s *ConsultationService) GetConsultation(ctx context.Context, id domain.ConsultationID) (*domain.Consultation, error) {
	return s.queue.Get(ctx, id)
}

// ListQueue returns the waiting queue as seen at now.
func (s *ConsultationService) ListQueue(ctx context.Context, now time.Time) ([]domain.QueueEntry, error) {
	return s.queue.Snapshot(ctx, now)
}

func (s *ConsultationService) StartConsultation(ctx context.Context, id domain.ConsultationID, providerID domain.ParticipantID) (*domain.Call, error) {
	return s.calls.StartCall(ctx, id, providerID)
}

// EndConsultation hangs up any live call and records the provider's notes.
func (s *ConsultationService) EndConsultation(ctx context.Context, id domain.ConsultationID, notes string) error {
	if err := validation.ValidateNotes(notes); err != nil {
		return errors.NewInvalidInputError(err.Error())
	}
	if _, err := s.queue.Get(ctx, id); err != nil {
		return err
	}

	s.calls.EndConsultationCall(ctx, id)
	if _, err := s.queue.Complete(ctx, id, notes); err != nil {
		return err
	}
	s.logger.Infow("Consultation ended", "consultation_id", id)
	return nil
}
