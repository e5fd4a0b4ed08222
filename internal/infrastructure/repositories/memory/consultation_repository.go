package memory

import (
	"context"
	"sync"

	"carebridge/internal/core/domain"
	"carebridge/internal/core/ports"
	"carebridge/pkg/errors"
)

// MemoryConsultationRepository stores copies so callers never share state with the store.
type MemoryConsultationRepository struct {
	consultations map[domain.ConsultationID]domain.Consultation
	mu            sync.RWMutex
}

func NewMemoryConsultationRepository() ports.ConsultationRepository {
	return &MemoryConsultationRepository{
		consultations: make(map[domain.ConsultationID]domain.Consultation),
	}
}

func (r *MemoryConsultationRepository) Create(ctx context.Context, c *domain.Consultation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.consultations[c.ID]; exists {
		return errors.NewConflictError("consultation already exists").WithContext("consultation_id", string(c.ID))
	}

	r.consultations[c.ID] = *c
	return nil
}

func (r *MemoryConsultationRepository) GetByID(ctx context.Context, id domain.ConsultationID) (*domain.Consultation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.consultations[id]
	if !exists {
		return nil, errors.NewNotFoundError("consultation").WithContext("consultation_id", string(id))
	}
	return &c, nil
}

func (r *MemoryConsultationRepository) Update(ctx context.Context, c *domain.Consultation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.consultations[c.ID]; !exists {
		return errors.NewNotFoundError("consultation").WithContext("consultation_id", string(c.ID))
	}

	r.consultations[c.ID] = *c
	return nil
}

func (r *MemoryConsultationRepository) ListByStatus(ctx context.Context, status domain.ConsultationStatus) ([]*domain.Consultation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Consultation
	for _, c := range r.consultations {
		if c.Status == status {
			c := c
			result = append(result, &c)
		}
	}
	return result, nil
}
