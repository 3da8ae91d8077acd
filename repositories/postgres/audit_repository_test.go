package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/llmops/session-fallback/models"
)

func newMockRepo(t *testing.T) (*AuditRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	wrapped := &DB{DB: db, logger: zap.NewNop()}
	repo := NewAuditRepository(wrapped, zap.NewNop()).(*AuditRepository)
	return repo, mock
}

func TestAuditRepository_Insert(t *testing.T) {
	repo, mock := newMockRepo(t)

	attempt := &models.FallbackAttempt{
		ID:        uuid.New(),
		SessionID: "ses_1",
		Model:     "anthropic/claude-haiku",
		Trigger:   "rate limit exceeded",
		Outcome:   models.AttemptOutcomeCompleted,
		CreatedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO fallback_attempts").
		WithArgs(attempt.ID, attempt.SessionID, attempt.Model, attempt.Trigger, attempt.Outcome, attempt.Error, attempt.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), attempt)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_InsertError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO fallback_attempts").
		WillReturnError(assert.AnError)

	err := repo.Insert(context.Background(), &models.FallbackAttempt{ID: uuid.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert fallback attempt")
}

func TestAuditRepository_RecentBySession(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now()
	id1, id2 := uuid.New(), uuid.New()
	rows := sqlmock.NewRows([]string{
		"id", "session_id", "model", "trigger_message", "outcome", "error_message", "created_at",
	}).
		AddRow(id1, "ses_1", "anthropic/claude-haiku", "rate limit", models.AttemptOutcomeCompleted, "", now).
		AddRow(id2, "ses_1", "anthropic/claude-haiku", "429", models.AttemptOutcomeFailed, "host down", now.Add(-time.Minute))

	mock.ExpectQuery("SELECT (.+) FROM fallback_attempts").
		WithArgs("ses_1", 10).
		WillReturnRows(rows)

	attempts, err := repo.RecentBySession(context.Background(), "ses_1", 10)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, id1, attempts[0].ID)
	assert.Equal(t, models.AttemptOutcomeFailed, attempts[1].Outcome)
	assert.Equal(t, "host down", attempts[1].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_RecentBySessionEmpty(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM fallback_attempts").
		WithArgs("unknown", 10).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "session_id", "model", "trigger_message", "outcome", "error_message", "created_at",
		}))

	attempts, err := repo.RecentBySession(context.Background(), "unknown", 10)
	require.NoError(t, err)
	assert.Empty(t, attempts)
}
