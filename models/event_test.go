package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalEvent(t *testing.T) {
	t.Run("session status retry", func(t *testing.T) {
		data := []byte(`{
			"type": "session.status",
			"properties": {
				"sessionID": "ses_123",
				"status": {
					"type": "retry",
					"attempt": 3,
					"message": "rate limit exceeded",
					"next": "2026-03-01T12:00:00Z"
				}
			}
		}`)

		ev, err := UnmarshalEvent(data)
		require.NoError(t, err)

		status, ok := ev.(SessionStatusEvent)
		require.True(t, ok)
		assert.Equal(t, "ses_123", status.SessionID)
		assert.Equal(t, StatusRetry, status.Status.Type)
		assert.Equal(t, 3, status.Status.Attempt)
		assert.Equal(t, "rate limit exceeded", status.Status.Message)
		require.NotNil(t, status.Status.Next)
	})

	t.Run("session status idle omits optional fields", func(t *testing.T) {
		data := []byte(`{"type":"session.status","properties":{"sessionID":"ses_1","status":{"type":"idle"}}}`)

		ev, err := UnmarshalEvent(data)
		require.NoError(t, err)

		status, ok := ev.(SessionStatusEvent)
		require.True(t, ok)
		assert.Equal(t, StatusIdle, status.Status.Type)
		assert.Empty(t, status.Status.Message)
		assert.Nil(t, status.Status.Next)
	})

	t.Run("session deleted", func(t *testing.T) {
		data := []byte(`{"type":"session.deleted","properties":{"info":{"id":"ses_9"}}}`)

		ev, err := UnmarshalEvent(data)
		require.NoError(t, err)

		deleted, ok := ev.(SessionDeletedEvent)
		require.True(t, ok)
		assert.Equal(t, "ses_9", deleted.Info.ID)
	})

	t.Run("unknown event types are ignored, not errors", func(t *testing.T) {
		data := []byte(`{"type":"message.part.updated","properties":{"anything":true}}`)

		ev, err := UnmarshalEvent(data)
		require.NoError(t, err)

		ignored, ok := ev.(IgnoredEvent)
		require.True(t, ok)
		assert.Equal(t, "message.part.updated", ignored.Type)
	})

	t.Run("malformed envelope is an error", func(t *testing.T) {
		_, err := UnmarshalEvent([]byte(`not json`))
		assert.Error(t, err)
	})

	t.Run("malformed properties for known type is an error", func(t *testing.T) {
		_, err := UnmarshalEvent([]byte(`{"type":"session.status","properties":[1,2]}`))
		assert.Error(t, err)
	})
}
