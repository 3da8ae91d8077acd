package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/llmops/session-fallback/models"
)

// memoryRepo collects inserted attempts in memory.
type memoryRepo struct {
	mu       sync.Mutex
	attempts []*models.FallbackAttempt
}

func (m *memoryRepo) Insert(ctx context.Context, attempt *models.FallbackAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, attempt)
	return nil
}

func (m *memoryRepo) RecentBySession(ctx context.Context, sessionID string, limit int) ([]*models.FallbackAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.FallbackAttempt
	for i := len(m.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		if m.attempts[i].SessionID == sessionID {
			out = append(out, m.attempts[i])
		}
	}
	return out, nil
}

func (m *memoryRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts)
}

func testAttempt(sessionID string) models.FallbackAttempt {
	return models.FallbackAttempt{
		ID:        uuid.New(),
		SessionID: sessionID,
		Model:     "anthropic/claude-haiku",
		Trigger:   "rate limit exceeded",
		Outcome:   models.AttemptOutcomeCompleted,
		CreatedAt: time.Now(),
	}
}

func TestService_RecordPersistsAsynchronously(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, zap.NewNop())
	svc.Start()

	for i := 0; i < 5; i++ {
		svc.Record(testAttempt("s1"))
	}

	require.NoError(t, svc.Stop(time.Second))
	assert.Equal(t, 5, repo.count())
}

func TestService_StopDrainsBuffer(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, zap.NewNop())
	svc.Start()

	svc.Record(testAttempt("s1"))
	svc.Record(testAttempt("s2"))

	require.NoError(t, svc.Stop(time.Second))

	recent, err := repo.RecentBySession(context.Background(), "s2", 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestService_RecordAfterStopIsDropped(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, zap.NewNop())
	svc.Start()
	require.NoError(t, svc.Stop(time.Second))

	assert.NotPanics(t, func() {
		svc.Record(testAttempt("s1"))
	})
	assert.Equal(t, 0, repo.count())
}

func TestService_StartIsIdempotent(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, zap.NewNop())
	svc.Start()
	svc.Start()

	svc.Record(testAttempt("s1"))
	require.NoError(t, svc.Stop(time.Second))
	assert.Equal(t, 1, repo.count())
}

func TestService_StopWithoutStart(t *testing.T) {
	svc := NewService(&memoryRepo{}, zap.NewNop())
	assert.NoError(t, svc.Stop(time.Second))
}

func TestService_ConcurrentRecordDuringStop(t *testing.T) {
	// Records racing Stop must either land or be dropped, never panic
	// with a send on the closed intake channel.
	for i := 0; i < 50; i++ {
		repo := &memoryRepo{}
		svc := NewService(repo, zap.NewNop())
		svc.Start()

		var wg sync.WaitGroup
		stop := make(chan struct{})
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-stop:
						return
					default:
						svc.Record(testAttempt("s1"))
					}
				}
			}()
		}

		require.NoError(t, svc.Stop(time.Second))
		close(stop)
		wg.Wait()
	}
}
