package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"carebridge/internal/core/domain"
	"carebridge/internal/core/ports"
	"carebridge/pkg/errors"

	"github.com/redis/go-redis/v9"
)

type RedisTriageRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisTriageRepository(client *redis.Client) ports.TriageRepository {
	return &RedisTriageRepository{
		client: client,
		prefix: keyPrefix + "triage:",
	}
}

func (r *RedisTriageRepository) sessionKey(id domain.TriageSessionID) string {
	return r.prefix + string(id)
}

func (r *RedisTriageRepository) urgencyCountsKey() string {
	return r.prefix + "urgency_counts"
}

func (r *RedisTriageRepository) Create(ctx context.Context, s *domain.TriageSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal triage session: %w", err)
	}

	created, err := r.client.SetNX(ctx, r.sessionKey(s.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store triage session in Redis: %w", err)
	}
	if !created {
		return errors.NewConflictError("triage session already exists").WithContext("triage_session_id", string(s.ID))
	}

	if err := r.client.HIncrBy(ctx, r.urgencyCountsKey(), string(s.Urgency), 1).Err(); err != nil {
		return fmt.Errorf("failed to count triage urgency: %w", err)
	}
	return nil
}

func (r *RedisTriageRepository) GetByID(ctx context.Context, id domain.TriageSessionID) (*domain.TriageSession, error) {
	data, err := r.client.Get(ctx, r.sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, errors.NewNotFoundError("triage session").WithContext("triage_session_id", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get triage session from Redis: %w", err)
	}

	var s domain.TriageSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal triage session: %w", err)
	}
	return &s, nil
}

func (r *RedisTriageRepository) CountByUrgency(ctx context.Context) (map[domain.Urgency]int, error) {
	raw, err := r.client.HGetAll(ctx, r.urgencyCountsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read triage counts from Redis: %w", err)
	}

	counts := make(map[domain.Urgency]int, len(domain.Urgencies))
	for _, u := range domain.Urgencies {
		n, _ := strconv.Atoi(raw[string(u)])
		counts[u] = n
	}
	return counts, nil
}
