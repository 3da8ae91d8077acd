package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Wire event type tags.
const (
	EventSessionStatus  = "session.status"
	EventSessionDeleted = "session.deleted"
)

// SessionStatusType identifies what a session is currently doing.
type SessionStatusType string

const (
	StatusIdle  SessionStatusType = "idle"
	StatusRetry SessionStatusType = "retry"
	StatusBusy  SessionStatusType = "busy"
)

// Event is the closed set of lifecycle event shapes the daemon reacts to.
// Frames with any other type tag decode to IgnoredEvent, not an error.
type Event interface {
	eventType() string
}

// SessionStatusEvent reports a session status change.
type SessionStatusEvent struct {
	SessionID string        `json:"sessionID"`
	Status    SessionStatus `json:"status"`
}

// SessionStatus carries the status payload of a SessionStatusEvent.
type SessionStatus struct {
	Type    SessionStatusType `json:"type"`
	Attempt int               `json:"attempt,omitempty"`
	Message string            `json:"message,omitempty"`
	Next    *time.Time        `json:"next,omitempty"`
}

// SessionDeletedEvent reports that the host deleted a session.
type SessionDeletedEvent struct {
	Info SessionInfo `json:"info"`
}

// SessionInfo identifies the session in deletion events.
type SessionInfo struct {
	ID string `json:"id"`
}

// IgnoredEvent stands in for every event type the daemon does not handle.
type IgnoredEvent struct {
	Type string
}

func (SessionStatusEvent) eventType() string  { return EventSessionStatus }
func (SessionDeletedEvent) eventType() string { return EventSessionDeleted }
func (e IgnoredEvent) eventType() string      { return e.Type }

// eventEnvelope is the wire framing the host uses for lifecycle events.
type eventEnvelope struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

// UnmarshalEvent decodes a wire frame into one of the Event variants.
func UnmarshalEvent(data []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode event envelope: %w", err)
	}

	switch env.Type {
	case EventSessionStatus:
		var ev SessionStatusEvent
		if err := json.Unmarshal(env.Properties, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode %s event: %w", env.Type, err)
		}
		return ev, nil
	case EventSessionDeleted:
		var ev SessionDeletedEvent
		if err := json.Unmarshal(env.Properties, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode %s event: %w", env.Type, err)
		}
		return ev, nil
	default:
		return IgnoredEvent{Type: env.Type}, nil
	}
}
