// Package fallback implements the per-session rate-limit fallback state
// machine: it consumes session lifecycle events, detects rate-limit
// conditions, and resubmits the failing request against the configured
// fallback model while enforcing a per-session cooldown.
package fallback

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/llmops/session-fallback/models"
	"github.com/llmops/session-fallback/services/matcher"
	"github.com/llmops/session-fallback/services/state"
)

const defaultSettleDelay = 100 * time.Millisecond

// HostClient is the host capability the controller drives during a
// fallback sequence. Each call may fail; failures end the sequence.
type HostClient interface {
	AbortSession(ctx context.Context, sessionID string) error
	FetchMessages(ctx context.Context, sessionID string) ([]models.ConversationMessage, error)
	RevertSession(ctx context.Context, sessionID, messageID string) error
	SubmitPrompt(ctx context.Context, sessionID string, payload models.PromptPayload) error
}

// Recorder receives fallback attempt records. Implementations must not
// block the caller.
type Recorder interface {
	Record(attempt models.FallbackAttempt)
}

// Config holds the controller tunables.
type Config struct {
	// Model is the fallback backend identity.
	Model models.ModelRef

	// Cooldown is the window during which further rate-limit signals for
	// the same session are suppressed.
	Cooldown time.Duration

	// SettleDelay is the pause after abort and after revert, giving the
	// host time to make the new session state visible. Defaults to 100ms.
	SettleDelay time.Duration
}

// Controller consumes lifecycle events, decides whether to trigger a
// fallback, and orchestrates the abort/revert/resend sequence.
type Controller struct {
	config  Config
	host    HostClient
	store   *state.Store
	matcher *matcher.Matcher
	auditor Recorder
	logger  *zap.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewController creates a controller. auditor may be nil to disable
// attempt recording.
func NewController(cfg Config, host HostClient, store *state.Store, m *matcher.Matcher, auditor Recorder, logger *zap.Logger) *Controller {
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = defaultSettleDelay
	}

	return &Controller{
		config:  cfg,
		host:    host,
		store:   store,
		matcher: m,
		auditor: auditor,
		logger:  logger,
		now:     time.Now,
	}
}

// OnEvent processes one lifecycle event. Callers may invoke it
// concurrently; all mutable state is partitioned by session ID. Events
// that are not session status or deletion events are ignored.
func (c *Controller) OnEvent(ctx context.Context, ev models.Event) {
	switch ev := ev.(type) {
	case models.SessionStatusEvent:
		c.onStatus(ctx, ev)
	case models.SessionDeletedEvent:
		c.onDeleted(ev)
	}
}

func (c *Controller) onStatus(ctx context.Context, ev models.SessionStatusEvent) {
	switch ev.Status.Type {
	case models.StatusRetry:
		c.onRetry(ctx, ev)
	case models.StatusIdle:
		c.onIdle(ev)
	}
}

// onRetry handles a retry status: if the message matches a configured
// rate-limit pattern and the session is not inside a cooldown window,
// it opens a new window and runs the fallback sequence.
func (c *Controller) onRetry(ctx context.Context, ev models.SessionStatusEvent) {
	if ev.Status.Message == "" || !c.matcher.Matches(ev.Status.Message) {
		return
	}

	now := c.now()
	if st, ok := c.store.Get(ev.SessionID); ok && st.FallbackActive && now.Before(st.CooldownEnd) {
		c.logger.Info("rate limit signal suppressed, cooldown active",
			zap.String("session_id", ev.SessionID),
			zap.Time("cooldown_end", st.CooldownEnd))
		c.record(models.FallbackAttempt{
			ID:        uuid.New(),
			SessionID: ev.SessionID,
			Model:     c.config.Model.String(),
			Trigger:   ev.Status.Message,
			Outcome:   models.AttemptOutcomeSkipped,
			CreatedAt: now,
		})
		return
	}

	// The cooldown window opens on detection, not on success, so a
	// failing sequence cannot re-trigger on the very next retry signal.
	c.store.Set(ev.SessionID, state.SessionState{
		FallbackActive: true,
		CooldownEnd:    now.Add(c.config.Cooldown),
	})

	attempt := models.FallbackAttempt{
		ID:        uuid.New(),
		SessionID: ev.SessionID,
		Model:     c.config.Model.String(),
		Trigger:   ev.Status.Message,
		CreatedAt: now,
	}

	c.logger.Info("rate limit detected, starting fallback",
		zap.String("session_id", ev.SessionID),
		zap.String("attempt_id", attempt.ID.String()),
		zap.String("fallback_model", c.config.Model.String()),
		zap.Int("retry_attempt", ev.Status.Attempt))

	if err := c.runSequence(ctx, ev.SessionID); err != nil {
		c.logger.Error("fallback sequence failed",
			zap.String("session_id", ev.SessionID),
			zap.String("attempt_id", attempt.ID.String()),
			zap.Error(err))
		attempt.Outcome = models.AttemptOutcomeFailed
		attempt.Error = err.Error()
		c.record(attempt)
		return
	}

	c.logger.Info("fallback sequence completed",
		zap.String("session_id", ev.SessionID),
		zap.String("attempt_id", attempt.ID.String()))
	attempt.Outcome = models.AttemptOutcomeCompleted
	c.record(attempt)
}

// onIdle clears the fallback flag once the cooldown deadline has
// passed. This is the only path back to the normal state.
func (c *Controller) onIdle(ev models.SessionStatusEvent) {
	st, ok := c.store.Get(ev.SessionID)
	if !ok || !st.FallbackActive {
		return
	}
	if c.now().Before(st.CooldownEnd) {
		return
	}

	st.FallbackActive = false
	c.store.Set(ev.SessionID, st)
	c.logger.Info("cooldown expired, fallback cleared",
		zap.String("session_id", ev.SessionID))
}

// onDeleted removes the session's entry unconditionally. An in-flight
// sequence for the session is left to finish or fail on its own.
func (c *Controller) onDeleted(ev models.SessionDeletedEvent) {
	c.store.Delete(ev.Info.ID)
	c.logger.Debug("session state removed",
		zap.String("session_id", ev.Info.ID))
}

// runSequence executes the abort/revert/resend sequence once. Any
// failure ends the sequence; the cooldown set by the caller stays in
// place either way.
func (c *Controller) runSequence(ctx context.Context, sessionID string) error {
	if err := c.host.AbortSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to abort session: %w", err)
	}

	// The host's abort is not synchronous with respect to message
	// visibility; let it settle before reading history.
	if err := c.settle(ctx); err != nil {
		return err
	}

	history, err := c.host.FetchMessages(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}
	if len(history) == 0 {
		return fmt.Errorf("session has no message history")
	}

	userIdx := lastUserMessage(history)
	if userIdx < 0 {
		return fmt.Errorf("no user message found in history")
	}
	userMsg := history[userIdx]

	// Roll back to the message before the user request, discarding the
	// failed attempt. The first message has no revert target.
	if userIdx > 0 {
		revertTo := history[userIdx-1]
		if err := c.host.RevertSession(ctx, sessionID, revertTo.ID); err != nil {
			return fmt.Errorf("failed to revert session: %w", err)
		}
		// Resubmitting while the revert is still applying risks the host
		// observing an inconsistent session.
		if err := c.settle(ctx); err != nil {
			return err
		}
	}

	parts := Reconstruct(userMsg.Parts)
	if len(parts) == 0 {
		return fmt.Errorf("no convertible parts in user message %s", userMsg.ID)
	}

	payload := models.PromptPayload{
		Model: c.config.Model,
		Agent: userMsg.Agent,
		Parts: parts,
	}
	if err := c.host.SubmitPrompt(ctx, sessionID, payload); err != nil {
		return fmt.Errorf("failed to submit fallback prompt: %w", err)
	}

	return nil
}

func (c *Controller) settle(ctx context.Context) error {
	select {
	case <-time.After(c.config.SettleDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) record(attempt models.FallbackAttempt) {
	if c.auditor == nil {
		return
	}
	c.auditor.Record(attempt)
}

// lastUserMessage returns the index of the most recent user-authored
// message, or -1 when none exists.
func lastUserMessage(history []models.ConversationMessage) int {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			return i
		}
	}
	return -1
}
