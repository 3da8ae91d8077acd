// Package repositories defines the persistence interfaces the audit
// sink is built against. Implementations live in subpackages.
package repositories

import (
	"context"

	"github.com/llmops/session-fallback/models"
)

// FallbackAttemptRepository stores fallback attempt records.
type FallbackAttemptRepository interface {
	// Insert stores one attempt record.
	Insert(ctx context.Context, attempt *models.FallbackAttempt) error

	// RecentBySession returns the most recent attempts for a session,
	// newest first.
	RecentBySession(ctx context.Context, sessionID string, limit int) ([]*models.FallbackAttempt, error)
}
