// Package state holds the per-session fallback bookkeeping.
package state

import (
	"sync"
	"time"
)

// SessionState tracks the fallback status of one session. A session
// with no entry in the store has never triggered a fallback.
type SessionState struct {
	// FallbackActive is true once a fallback has been triggered and not
	// yet cleared.
	FallbackActive bool `json:"fallback_active"`

	// CooldownEnd is the instant after which a new rate-limit signal may
	// trigger another fallback for this session.
	CooldownEnd time.Time `json:"cooldown_end"`
}

// Store is an in-memory mapping from session ID to SessionState.
// Contents are process-lifetime only; a restart resets every session to
// "no fallback active". Safe for concurrent use; entries for different
// sessions are independent.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]SessionState
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]SessionState),
	}
}

// Get returns the state for a session and whether an entry exists.
func (s *Store) Get(sessionID string) (SessionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.sessions[sessionID]
	return st, ok
}

// Set stores the state for a session, creating the entry if needed.
func (s *Store) Set(sessionID string, st SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionID] = st
}

// Delete removes a session's entry. Removing a missing entry is a no-op.
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
}

// Len returns the number of tracked sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}

// Snapshot returns a copy of the full mapping for the admin API.
func (s *Store) Snapshot() map[string]SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]SessionState, len(s.sessions))
	for id, st := range s.sessions {
		out[id] = st
	}
	return out
}
