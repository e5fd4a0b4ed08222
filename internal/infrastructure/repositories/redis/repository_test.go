package redis

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"carebridge/internal/core/domain"
	"carebridge/pkg/errors"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient connects to CAREBRIDGE_TEST_REDIS or skips.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("CAREBRIDGE_TEST_REDIS")
	if addr == "" {
		t.Skip("CAREBRIDGE_TEST_REDIS not set")
	}
	client, err := NewRedisClient(addr, "", 15, 4, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		_ = CloseRedisClient(client)
	})
	return client
}

func TestRedisConsultationRepository_StatusIndex(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	repo := NewRedisConsultationRepository(client)

	id := domain.ConsultationID(fmt.Sprintf("cons_%d", time.Now().UnixNano()))
	c := &domain.Consultation{
		ID:        id,
		PatientID: "patient_1",
		Urgency:   domain.UrgencyRoutine,
		Status:    domain.ConsultationWaiting,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, repo.Create(ctx, c))
	assert.True(t, errors.IsConflict(repo.Create(ctx, c)))

	waiting, err := repo.ListByStatus(ctx, domain.ConsultationWaiting)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, id, waiting[0].ID)

	c.Status = domain.ConsultationInProgress
	require.NoError(t, repo.Update(ctx, c))

	waiting, err = repo.ListByStatus(ctx, domain.ConsultationWaiting)
	require.NoError(t, err)
	assert.Empty(t, waiting)

	inProgress, err := repo.ListByStatus(ctx, domain.ConsultationInProgress)
	require.NoError(t, err)
	require.Len(t, inProgress, 1)

	_, err = repo.GetByID(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestRedisConsultationRepository_CreateIsAtomic(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	repo := NewRedisConsultationRepository(client).(*RedisConsultationRepository)

	id := domain.ConsultationID(fmt.Sprintf("cons_%d", time.Now().UnixNano()))
	newConsultation := func(status domain.ConsultationStatus) *domain.Consultation {
		return &domain.Consultation{ID: id, PatientID: "patient_1", Urgency: domain.UrgencyUrgent, Status: status}
	}

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Create(ctx, newConsultation(domain.ConsultationWaiting))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else if errors.IsConflict(err) {
				conflicts++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
	assert.Equal(t, writers-1, conflicts)

	// A rejected create leaves no trace in another status index.
	assert.True(t, errors.IsConflict(repo.Create(ctx, newConsultation(domain.ConsultationInProgress))))
	n, err := client.SCard(ctx, repo.statusKey(domain.ConsultationInProgress)).Result()
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = client.SCard(ctx, repo.statusKey(domain.ConsultationWaiting)).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestRedisTriageRepository_Counts(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	repo := NewRedisTriageRepository(client)

	require.NoError(t, repo.Create(ctx, &domain.TriageSession{ID: "t1", Urgency: domain.UrgencyUrgent}))
	require.NoError(t, repo.Create(ctx, &domain.TriageSession{ID: "t2", Urgency: domain.UrgencyUrgent}))

	counts, err := repo.CountByUrgency(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[domain.UrgencyUrgent])
	assert.Equal(t, 0, counts[domain.UrgencyEmergency])
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(fmt.Errorf("dial tcp 127.0.0.1:6379: connect: connection refused")))
	assert.False(t, isTransient(fmt.Errorf("NOAUTH Authentication required.")))
	assert.False(t, isTransient(fmt.Errorf("WRONGPASS invalid username-password pair")))
}
