package memory

import (
	"context"
	"sync"

	"carebridge/internal/core/domain"
	"carebridge/internal/core/ports"
	"carebridge/pkg/errors"
)

type MemoryTriageRepository struct {
	sessions map[domain.TriageSessionID]domain.TriageSession
	mu       sync.RWMutex
}

func NewMemoryTriageRepository() ports.TriageRepository {
	return &MemoryTriageRepository{
		sessions: make(map[domain.TriageSessionID]domain.TriageSession),
	}
}

func (r *MemoryTriageRepository) Create(ctx context.Context, s *domain.TriageSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID]; exists {
		return errors.NewConflictError("triage session already exists").WithContext("triage_session_id", string(s.ID))
	}

	stored := *s
	stored.RecommendedActions = append([]string(nil), s.RecommendedActions...)
	r.sessions[s.ID] = stored
	return nil
}

func (r *MemoryTriageRepository) GetByID(ctx context.Context, id domain.TriageSessionID) (*domain.TriageSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sessions[id]
	if !exists {
		return nil, errors.NewNotFoundError("triage session").WithContext("triage_session_id", string(id))
	}
	s.RecommendedActions = append([]string(nil), s.RecommendedActions...)
	return &s, nil
}

func (r *MemoryTriageRepository) CountByUrgency(ctx context.Context) (map[domain.Urgency]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[domain.Urgency]int, len(domain.Urgencies))
	for _, u := range domain.Urgencies {
		counts[u] = 0
	}
	for _, s := range r.sessions {
		counts[s.Urgency]++
	}
	return counts, nil
}
