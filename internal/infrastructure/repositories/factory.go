package repositories

import (
	"context"

	"carebridge/internal/core/ports"
	"carebridge/internal/infrastructure/repositories/memory"
	redisrepo "carebridge/internal/infrastructure/repositories/redis"
	"carebridge/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories, falling back to memory when Redis is unavailable.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) *RepositoryFactory {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory
}

func (f *RepositoryFactory) UsingRedis() bool {
	return f.useRedis && f.redisClient != nil
}

func (f *RepositoryFactory) CreateConsultationRepository() ports.ConsultationRepository {
	if f.UsingRedis() {
		return redisrepo.NewRedisConsultationRepository(f.redisClient)
	}
	return memory.NewMemoryConsultationRepository()
}

func (f *RepositoryFactory) CreateTriageRepository() ports.TriageRepository {
	if f.UsingRedis() {
		return redisrepo.NewRedisTriageRepository(f.redisClient)
	}
	return memory.NewMemoryTriageRepository()
}

func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck pings Redis when it backs the repositories.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.UsingRedis() {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
