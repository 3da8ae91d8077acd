// Package audit persists fallback attempt records asynchronously so
// that recording never blocks the event handling path.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/llmops/session-fallback/models"
	"github.com/llmops/session-fallback/repositories"
)

const (
	defaultBufferSize = 256
	defaultWorkers    = 2
	insertTimeout     = 5 * time.Second
)

// Service writes fallback attempts to the repository from background
// workers. Record is non-blocking: when the buffer is full the attempt
// is dropped and a warning is logged.
type Service struct {
	repo    repositories.FallbackAttemptRepository
	logger  *zap.Logger
	entries chan models.FallbackAttempt
	workers int
	wg      sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewService creates an audit service backed by the given repository.
func NewService(repo repositories.FallbackAttemptRepository, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		logger:  logger,
		entries: make(chan models.FallbackAttempt, defaultBufferSize),
		workers: defaultWorkers,
	}
}

// Start launches the background workers.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.logger.Info("audit service started",
		zap.Int("workers", s.workers),
		zap.Int("buffer_size", cap(s.entries)))
}

// Stop closes the intake channel and waits for the workers to drain
// the buffer, up to the given timeout.
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.entries)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timed out after %s", timeout)
	}
}

// Record queues an attempt for persistence. It never blocks the caller.
// The mutex is held across the send so Stop cannot close the channel
// between the stopped check and the send; workers only ever receive, so
// the non-blocking send cannot deadlock against them.
func (s *Service) Record(attempt models.FallbackAttempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	select {
	case s.entries <- attempt:
	default:
		s.logger.Warn("audit buffer full, dropping attempt record",
			zap.String("session_id", attempt.SessionID),
			zap.String("outcome", attempt.Outcome))
	}
}

func (s *Service) worker(id int) {
	defer s.wg.Done()

	for attempt := range s.entries {
		s.persist(attempt)
	}

	s.logger.Debug("audit worker exiting", zap.Int("worker", id))
}

func (s *Service) persist(attempt models.FallbackAttempt) {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	if err := s.repo.Insert(ctx, &attempt); err != nil {
		s.logger.Error("failed to persist fallback attempt",
			zap.String("id", attempt.ID.String()),
			zap.String("session_id", attempt.SessionID),
			zap.Error(err))
	}
}
