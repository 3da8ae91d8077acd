package hostclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/llmops/session-fallback/models"
)

const (
	eventStreamPath = "/event"

	// Event frames are small; histories travel over the HTTP API.
	eventReadLimit = 1 << 20

	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// EventHandler receives one decoded lifecycle event. Handlers for
// different sessions may run concurrently.
type EventHandler func(ctx context.Context, ev models.Event)

// EventStream subscribes to the host's lifecycle event websocket and
// dispatches decoded events. It reconnects with capped backoff until
// the context is cancelled.
type EventStream struct {
	config Config
	logger *zap.Logger
}

// NewEventStream creates an event stream for the given host.
func NewEventStream(cfg Config, logger *zap.Logger) *EventStream {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &EventStream{
		config: cfg,
		logger: logger,
	}
}

// Run connects and dispatches events until ctx is cancelled. Events for
// the same session are handed to the handler serially in arrival order;
// sessions are independent, so a slow fallback sequence never stalls
// the stream or other sessions.
func (s *EventStream) Run(ctx context.Context, handle EventHandler) error {
	wsURL, err := s.streamURL()
	if err != nil {
		return err
	}
	d := newDispatcher(handle)

	delay := reconnectBaseDelay
	for {
		conn, err := s.dial(ctx, wsURL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("event stream connect failed, retrying",
				zap.Duration("retry_in", delay),
				zap.Error(err))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay = min(delay*2, reconnectMaxDelay)
			continue
		}

		s.logger.Info("event stream connected", zap.String("url", wsURL))
		delay = reconnectBaseDelay

		if err := s.readLoop(ctx, conn, d); err != nil {
			if ctx.Err() != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "shutting down")
				return ctx.Err()
			}
			s.logger.Warn("event stream disconnected", zap.Error(err))
		}
		_ = conn.Close(websocket.StatusNormalClosure, "reconnecting")
	}
}

func (s *EventStream) dial(ctx context.Context, wsURL string) (*websocket.Conn, error) {
	header := http.Header{}
	if s.config.APIKey != "" {
		header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial event stream: %w", err)
	}

	conn.SetReadLimit(eventReadLimit)
	return conn, nil
}

func (s *EventStream) readLoop(ctx context.Context, conn *websocket.Conn, d *dispatcher) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		ev, err := models.UnmarshalEvent(data)
		if err != nil {
			s.logger.Warn("dropping undecodable event frame", zap.Error(err))
			continue
		}

		d.dispatch(ctx, ev)
	}
}

// dispatcher serializes handler invocations per session: events for one
// session run in arrival order, while different sessions proceed
// concurrently. A session's drain goroutine exists only while its queue
// is non-empty.
type dispatcher struct {
	handle EventHandler

	mu     sync.Mutex
	queues map[string][]models.Event
}

func newDispatcher(handle EventHandler) *dispatcher {
	return &dispatcher{
		handle: handle,
		queues: make(map[string][]models.Event),
	}
}

func (d *dispatcher) dispatch(ctx context.Context, ev models.Event) {
	key := sessionKey(ev)
	if key == "" {
		// No session affinity, nothing to order against.
		go d.handle(ctx, ev)
		return
	}

	d.mu.Lock()
	queue, active := d.queues[key]
	d.queues[key] = append(queue, ev)
	d.mu.Unlock()

	if !active {
		go d.drain(ctx, key)
	}
}

// drain runs the session's queued events in order and removes the queue
// entry once empty. Queue presence doubles as the "drainer running"
// marker, both manipulated under the mutex.
func (d *dispatcher) drain(ctx context.Context, key string) {
	for {
		d.mu.Lock()
		queue := d.queues[key]
		if len(queue) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		ev := queue[0]
		d.queues[key] = queue[1:]
		d.mu.Unlock()

		d.handle(ctx, ev)
	}
}

// sessionKey returns the session an event belongs to, or "" for events
// with no session affinity.
func sessionKey(ev models.Event) string {
	switch ev := ev.(type) {
	case models.SessionStatusEvent:
		return ev.SessionID
	case models.SessionDeletedEvent:
		return ev.Info.ID
	}
	return ""
}

// streamURL converts the HTTP base URL into the websocket event URL.
func (s *EventStream) streamURL() (string, error) {
	u, err := url.Parse(s.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid host base URL %q: %w", s.config.BaseURL, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported host base URL scheme %q", u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + eventStreamPath
	return u.String(), nil
}
