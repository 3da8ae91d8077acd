package hostclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/llmops/session-fallback/models"
)

func TestEventStream_StreamURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		want    string
		wantErr bool
	}{
		{name: "http to ws", baseURL: "http://127.0.0.1:4096", want: "ws://127.0.0.1:4096/event"},
		{name: "https to wss", baseURL: "https://host.internal", want: "wss://host.internal/event"},
		{name: "ws passes through", baseURL: "ws://host.internal", want: "ws://host.internal/event"},
		{name: "trailing slash trimmed", baseURL: "http://host.internal/base/", want: "ws://host.internal/base/event"},
		{name: "unsupported scheme", baseURL: "ftp://host.internal", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := NewEventStream(Config{BaseURL: tt.baseURL}, zap.NewNop())
			got, err := stream.streamURL()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEventStream_DispatchesEvents(t *testing.T) {
	frames := []string{
		`{"type":"session.status","properties":{"sessionID":"ses_1","status":{"type":"retry","message":"rate limit"}}}`,
		`not even json`,
		`{"type":"message.updated","properties":{}}`,
		`{"type":"session.deleted","properties":{"info":{"id":"ses_1"}}}`,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		conn, err := websocket.Accept(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")

		for _, frame := range frames {
			if !assert.NoError(t, conn.Write(r.Context(), websocket.MessageText, []byte(frame))) {
				return
			}
		}
		// Hold the connection open until the client goes away.
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var received []models.Event
	done := make(chan struct{})

	stream := NewEventStream(Config{BaseURL: server.URL, APIKey: "test-key"}, zap.NewNop())
	go func() {
		_ = stream.Run(ctx, func(ctx context.Context, ev models.Event) {
			mu.Lock()
			defer mu.Unlock()
			received = append(received, ev)
			// One undecodable frame is dropped, three decode.
			if len(received) == 3 {
				close(done)
			}
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for events")
	}
	cancel()

	mu.Lock()
	defer mu.Unlock()

	var statuses, deleted, ignored int
	for _, ev := range received {
		switch ev.(type) {
		case models.SessionStatusEvent:
			statuses++
		case models.SessionDeletedEvent:
			deleted++
		case models.IgnoredEvent:
			ignored++
		}
	}
	assert.Equal(t, 1, statuses)
	assert.Equal(t, 1, deleted)
	assert.Equal(t, 1, ignored)
}

func TestDispatcher_SerializesPerSession(t *testing.T) {
	const perSession = 40

	var mu sync.Mutex
	seen := map[string][]int{}
	handle := func(ctx context.Context, ev models.Event) {
		sev := ev.(models.SessionStatusEvent)
		// Give interleaved goroutines a chance to overtake if ordering
		// were not enforced.
		time.Sleep(time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		seen[sev.SessionID] = append(seen[sev.SessionID], sev.Status.Attempt)
	}

	d := newDispatcher(handle)
	ctx := context.Background()
	for i := 1; i <= perSession; i++ {
		for _, id := range []string{"ses_a", "ses_b"} {
			d.dispatch(ctx, models.SessionStatusEvent{
				SessionID: id,
				Status:    models.SessionStatus{Type: models.StatusRetry, Attempt: i},
			})
		}
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen["ses_a"]) == perSession && len(seen["ses_b"]) == perSession
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, id := range []string{"ses_a", "ses_b"} {
		for i, attempt := range seen[id] {
			assert.Equal(t, i+1, attempt, "session %s out of order at position %d", id, i)
		}
	}
}

func TestDispatcher_EventsWithoutSessionStillDispatch(t *testing.T) {
	got := make(chan models.Event, 1)
	d := newDispatcher(func(ctx context.Context, ev models.Event) { got <- ev })

	d.dispatch(context.Background(), models.IgnoredEvent{Type: "server.connected"})

	select {
	case ev := <-got:
		assert.Equal(t, models.IgnoredEvent{Type: "server.connected"}, ev)
	case <-time.After(time.Second):
		t.Fatal("event was never dispatched")
	}
}

func TestEventStream_RunStopsOnCancel(t *testing.T) {
	// No server: Run keeps retrying the dial until the context ends.
	stream := NewEventStream(Config{BaseURL: "http://127.0.0.1:1"}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := stream.Run(ctx, func(context.Context, models.Event) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
