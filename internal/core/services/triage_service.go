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

const maxSummaryLength = 4000

// TriageService records the outcome of the external triage step so a
// consultation can later be created from it.
type TriageService struct {
	repo   ports.TriageRepository
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewTriageService(repo ports.TriageRepository, logger *zap.SugaredLogger) *TriageService {
	return &TriageService{repo: repo, logger: logger, now: time.Now}
}

func (s *TriageService) RecordSession(ctx context.Context, input ports.TriageInput) (*domain.TriageSession, error) {
	urgency, err := domain.ParseUrgency(input.Urgency)
	if err != nil {
		return nil, errors.NewInvalidInputError(err.Error())
	}
	summary := utils.SanitizeString(input.Summary)
	if err := validation.ValidateStringLength(summary, 1, maxSummaryLength, "summary"); err != nil {
		return nil, errors.NewInvalidInputError(err.Error())
	}
	if input.Confidence < 0 || input.Confidence > 1 {
		return nil, errors.NewInvalidInputError("confidence_score must be between 0 and 1")
	}

	session := &domain.TriageSession{
		ID:                 domain.TriageSessionID(utils.GenerateTriageSessionID()),
		Urgency:            urgency,
		Summary:            summary,
		RecommendedActions: input.RecommendedActions,
		Confidence:         input.Confidence,
		CreatedAt:          s.now(),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Infow("Triage session recorded", "triage_session_id", session.ID, "urgency", urgency)
	return session, nil
}

func (s *TriageService) GetSession(ctx context.Context, id domain.TriageSessionID) (*domain.TriageSession, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *TriageService) UrgencyStats(ctx context.Context) (map[domain.Urgency]int, error) {
	return s.repo.CountByUrgency(ctx)
}
