package ports

import (
	"context"

	"carebridge/internal/core/domain"
)

type ConsultationRepository interface {
	Create(ctx context.Context, consultation *domain.Consultation) error
	GetByID(ctx context.Context, id domain.ConsultationID) (*domain.Consultation, error)
	Update(ctx context.Context, consultation *domain.Consultation) error
	ListByStatus(ctx context.Context, status domain.ConsultationStatus) ([]*domain.Consultation, error)
}

type TriageRepository interface {
	Create(ctx context.Context, session *domain.TriageSession) error
	GetByID(ctx context.Context, id domain.TriageSessionID) (*domain.TriageSession, error)
	CountByUrgency(ctx context.Context) (map[domain.Urgency]int, error)
}
