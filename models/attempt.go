package models

import (
	"time"

	"github.com/google/uuid"
)

// Fallback attempt outcomes.
const (
	AttemptOutcomeSkipped   = "skipped"
	AttemptOutcomeCompleted = "completed"
	AttemptOutcomeFailed    = "failed"
)

// FallbackAttempt is the audit record for one reaction to a rate-limit
// signal: either a suppressed duplicate within a cooldown window or a
// full fallback sequence run.
type FallbackAttempt struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"session_id"`
	Model     string    `json:"model"`
	Trigger   string    `json:"trigger"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
