package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"carebridge/internal/core/domain"
	"carebridge/internal/core/ports"
	"carebridge/pkg/errors"

	"github.com/redis/go-redis/v9"
)

// RedisConsultationRepository keeps each consultation as a JSON document and
// indexes ids in one set per status.
type RedisConsultationRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisConsultationRepository(client *redis.Client) ports.ConsultationRepository {
	return &RedisConsultationRepository{
		client: client,
		prefix: keyPrefix + "consultation:",
	}
}

func (r *RedisConsultationRepository) consultationKey(id domain.ConsultationID) string {
	return r.prefix + string(id)
}

func (r *RedisConsultationRepository) statusKey(status domain.ConsultationStatus) string {
	return r.prefix + "status:" + string(status)
}

// createScript stores the document and indexes its status only when the id is new.
const createScript = `
	if redis.call("set", KEYS[1], ARGV[1], "NX") then
		redis.call("sadd", KEYS[2], ARGV[2])
		return 1
	end
	return 0
`

func (r *RedisConsultationRepository) Create(ctx context.Context, c *domain.Consultation) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal consultation: %w", err)
	}

	created, err := r.client.Eval(ctx, createScript,
		[]string{r.consultationKey(c.ID), r.statusKey(c.Status)},
		data, string(c.ID),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to store consultation in Redis: %w", err)
	}
	if created == 0 {
		return errors.NewConflictError("consultation already exists").WithContext("consultation_id", string(c.ID))
	}
	return nil
}

func (r *RedisConsultationRepository) GetByID(ctx context.Context, id domain.ConsultationID) (*domain.Consultation, error) {
	data, err := r.client.Get(ctx, r.consultationKey(id)).Bytes()
	if err == redis.Nil {
		return nil, errors.NewNotFoundError("consultation").WithContext("consultation_id", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consultation from Redis: %w", err)
	}

	var c domain.Consultation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal consultation: %w", err)
	}
	return &c, nil
}

// Update rewrites the document and moves the id between status sets in one transaction.
func (r *RedisConsultationRepository) Update(ctx context.Context, c *domain.Consultation) error {
	prev, err := r.GetByID(ctx, c.ID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal consultation: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.consultationKey(c.ID), data, 0)
		if prev.Status != c.Status {
			pipe.SRem(ctx, r.statusKey(prev.Status), string(c.ID))
			pipe.SAdd(ctx, r.statusKey(c.Status), string(c.ID))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update consultation in Redis: %w", err)
	}
	return nil
}

func (r *RedisConsultationRepository) ListByStatus(ctx context.Context, status domain.ConsultationStatus) ([]*domain.Consultation, error) {
	ids, err := r.client.SMembers(ctx, r.statusKey(status)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list consultations from Redis: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.consultationKey(domain.ConsultationID(id))
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load consultations from Redis: %w", err)
	}

	result := make([]*domain.Consultation, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Skip ids whose document no longer exists
			continue
		}
		var c domain.Consultation
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("failed to unmarshal consultation: %w", err)
		}
		if c.Status == status {
			result = append(result, &c)
		}
	}
	return result, nil
}
