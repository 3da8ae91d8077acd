package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/llmops/session-fallback/models"
	"github.com/llmops/session-fallback/repositories"
)

// AuditRepository implements repositories.FallbackAttemptRepository on
// PostgreSQL.
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.FallbackAttemptRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert stores one fallback attempt record
func (r *AuditRepository) Insert(ctx context.Context, attempt *models.FallbackAttempt) error {
	query := `
		INSERT INTO fallback_attempts (
			id, session_id, model, trigger_message, outcome, error_message, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		attempt.ID,
		attempt.SessionID,
		attempt.Model,
		attempt.Trigger,
		attempt.Outcome,
		attempt.Error,
		attempt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert fallback attempt: %w", err)
	}

	r.logger.Debug("fallback attempt recorded",
		zap.String("id", attempt.ID.String()),
		zap.String("session_id", attempt.SessionID),
		zap.String("outcome", attempt.Outcome))
	return nil
}

// RecentBySession returns the most recent attempts for a session, newest first
func (r *AuditRepository) RecentBySession(ctx context.Context, sessionID string, limit int) ([]*models.FallbackAttempt, error) {
	query := `
		SELECT id, session_id, model, trigger_message, outcome, error_message, created_at
		FROM fallback_attempts
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fallback attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*models.FallbackAttempt
	for rows.Next() {
		attempt := &models.FallbackAttempt{}
		if err := rows.Scan(
			&attempt.ID,
			&attempt.SessionID,
			&attempt.Model,
			&attempt.Trigger,
			&attempt.Outcome,
			&attempt.Error,
			&attempt.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan fallback attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fallback attempts: %w", err)
	}

	return attempts, nil
}
