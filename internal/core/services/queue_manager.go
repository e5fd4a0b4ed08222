package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"carebridge/internal/core/domain"
	"carebridge/internal/core/ports"
	"carebridge/pkg/errors"

	"go.uber.org/zap"
)

// ProviderDirectory lists the channels that receive queue change notices.
type ProviderDirectory interface {
	ProviderChannels() []domain.Channel
}

// QueueManager owns consultation status. All status changes are serialized
// through mu, which makes Dequeue a single atomic claim per consultation.
type QueueManager struct {
	mu        sync.Mutex
	repo      ports.ConsultationRepository
	providers ProviderDirectory
	metrics   ports.MetricsRecorder
	logger    *zap.SugaredLogger
	now       func() time.Time
}

func NewQueueManager(
	repo ports.ConsultationRepository,
	providers ProviderDirectory,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
) *QueueManager {
	return &QueueManager{
		repo:      repo,
		providers: providers,
		metrics:   metricsOrNoop(metrics),
		logger:    logger,
		now:       time.Now,
	}
}

// Enqueue stores a new Waiting consultation and notifies providers.
func (q *QueueManager) Enqueue(ctx context.Context, c *domain.Consultation) error {
	if c == nil || c.ID == "" {
		return errors.NewInvalidInputError("consultation id is required")
	}
	if c.Status != domain.ConsultationWaiting {
		return errors.NewInvalidStateError("only waiting consultations can be enqueued")
	}
	if !c.Urgency.Valid() {
		return errors.NewInvalidInputError(fmt.Sprintf("unknown urgency level %q", c.Urgency))
	}

	q.mu.Lock()
	if err := q.repo.Create(ctx, c); err != nil {
		q.mu.Unlock()
		return err
	}
	q.recordDepthLocked(ctx)
	q.mu.Unlock()

	q.logger.Infow("Consultation enqueued",
		"consultation_id", c.ID,
		"urgency", c.Urgency,
	)
	q.NotifyProviders()
	return nil
}

// Dequeue atomically moves a Waiting consultation to InProgress. A
// consultation already InProgress is a conflict; a Completed one is gone.
func (q *QueueManager) Dequeue(ctx context.Context, id domain.ConsultationID, providerID domain.ParticipantID) (*domain.Consultation, error) {
	q.mu.Lock()
	c, err := q.repo.GetByID(ctx, id)
	if err != nil {
		q.mu.Unlock()
		return nil, err
	}
	switch c.Status {
	case domain.ConsultationInProgress:
		q.mu.Unlock()
		return nil, errors.NewConflictError("consultation already being handled").
			WithContext("consultation_id", string(id))
	case domain.ConsultationCompleted:
		q.mu.Unlock()
		return nil, errors.NewNotFoundError("waiting consultation").WithContext("consultation_id", string(id))
	}

	now := q.now()
	c.Status = domain.ConsultationInProgress
	c.StartedAt = &now
	c.ProviderID = providerID
	if err := q.repo.Update(ctx, c); err != nil {
		q.mu.Unlock()
		return nil, err
	}
	q.recordDepthLocked(ctx)
	q.mu.Unlock()

	q.NotifyProviders()
	return c, nil
}

// Requeue returns an InProgress consultation to Waiting after a call could
// not be started. Its original creation time keeps its place in line.
func (q *QueueManager) Requeue(ctx context.Context, id domain.ConsultationID) error {
	q.mu.Lock()
	c, err := q.repo.GetByID(ctx, id)
	if err != nil {
		q.mu.Unlock()
		return err
	}
	if c.Status != domain.ConsultationInProgress {
		q.mu.Unlock()
		return errors.NewInvalidStateError("only in-progress consultations can be requeued")
	}

	c.Status = domain.ConsultationWaiting
	c.StartedAt = nil
	c.ProviderID = ""
	if err := q.repo.Update(ctx, c); err != nil {
		q.mu.Unlock()
		return err
	}
	q.recordDepthLocked(ctx)
	q.mu.Unlock()

	q.logger.Infow("Consultation returned to queue", "consultation_id", id)
	q.NotifyProviders()
	return nil
}

// Complete moves an InProgress consultation to Completed. Completing an
// already completed consultation only updates non-empty notes.
func (q *QueueManager) Complete(ctx context.Context, id domain.ConsultationID, notes string) (*domain.Consultation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	c, err := q.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch c.Status {
	case domain.ConsultationWaiting:
		return nil, errors.NewInvalidStateError("consultation has not started").
			WithContext("consultation_id", string(id))
	case domain.ConsultationCompleted:
		if notes == "" || notes == c.Notes {
			return c, nil
		}
	default:
		now := q.now()
		c.Status = domain.ConsultationCompleted
		c.CompletedAt = &now
	}
	if notes != "" {
		c.Notes = notes
	}

	if err := q.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (q *QueueManager) Get(ctx context.Context, id domain.ConsultationID) (*domain.Consultation, error) {
	return q.repo.GetByID(ctx, id)
}

// Snapshot returns the ordered Waiting consultations with wait times measured at now.
func (q *QueueManager) Snapshot(ctx context.Context, now time.Time) ([]domain.QueueEntry, error) {
	q.mu.Lock()
	waiting, err := q.repo.ListByStatus(ctx, domain.ConsultationWaiting)
	q.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return domain.ProjectQueue(waiting, now), nil
}

// NotifyProviders tells every connected provider the queue changed.
// The notice carries no data; providers refetch the snapshot.
func (q *QueueManager) NotifyProviders() {
	if q.providers == nil {
		return
	}
	for _, ch := range q.providers.ProviderChannels() {
		if err := ch.Send(domain.Envelope{Type: domain.EventQueueUpdated}); err != nil {
			q.logger.Debugw("Failed to deliver queue update", "error", err)
		}
	}
}

func (q *QueueManager) recordDepthLocked(ctx context.Context) {
	waiting, err := q.repo.ListByStatus(ctx, domain.ConsultationWaiting)
	if err != nil {
		q.logger.Warnw("Failed to compute queue depth", "error", err)
		return
	}
	depth := make(map[domain.Urgency]int, len(domain.Urgencies))
	for _, u := range domain.Urgencies {
		depth[u] = 0
	}
	for _, c := range waiting {
		depth[c.Urgency]++
	}
	q.metrics.QueueDepth(depth)
}
