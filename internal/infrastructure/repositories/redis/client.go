package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"carebridge/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "carebridge:"

var connectRetry = retry.Config{
	MaxAttempts:  4,
	InitialDelay: 250 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   2,
	Jitter:       true,
	Retryable:    isTransient,
}

// isTransient rejects failures another ping cannot fix.
func isTransient(err error) bool {
	msg := err.Error()
	return !strings.Contains(msg, "NOAUTH") && !strings.Contains(msg, "WRONGPASS") && !strings.Contains(msg, "invalid password")
}

// NewRedisClient creates a pooled client and verifies the connection.
func NewRedisClient(address, password string, db, poolSize int, logger *zap.SugaredLogger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         address,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Redis often starts alongside us; give it a few tries before falling back.
	err := retry.Do(ctx, connectRetry, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger != nil {
		logger.Infow("connected to Redis",
			"address", address,
			"db", db,
			"pool_size", poolSize,
		)
	}

	return client, nil
}

func CloseRedisClient(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
