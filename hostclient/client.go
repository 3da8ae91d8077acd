// Package hostclient talks to the agent-platform host: session control
// over its HTTP API and lifecycle events over its websocket stream.
package hostclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/llmops/session-fallback/models"
)

const defaultBaseURL = "http://127.0.0.1:4096"

// Config holds connection settings for the host API.
type Config struct {
	// BaseURL of the host HTTP API.
	BaseURL string

	// APIKey sent as a bearer token. Empty means unauthenticated.
	APIKey string

	// Timeout for individual HTTP requests.
	Timeout time.Duration

	// MaxRetries for failed requests (5xx and transport errors).
	MaxRetries int

	// RetryDelay between retries, scaled linearly by attempt.
	RetryDelay time.Duration
}

// Client is the HTTP client for the host's session API.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a host client. Zero-value config fields get defaults.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// AbortSession asks the host to abort the in-flight attempt for a session.
func (c *Client) AbortSession(ctx context.Context, sessionID string) error {
	path := "/session/" + url.PathEscape(sessionID) + "/abort"
	return c.do(ctx, "abort", http.MethodPost, path, nil, nil)
}

// FetchMessages returns the full message history for a session.
func (c *Client) FetchMessages(ctx context.Context, sessionID string) ([]models.ConversationMessage, error) {
	path := "/session/" + url.PathEscape(sessionID) + "/message"
	var history []models.ConversationMessage
	if err := c.do(ctx, "fetch_messages", http.MethodGet, path, nil, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// RevertSession rolls a session back to the given message, discarding
// everything after it.
func (c *Client) RevertSession(ctx context.Context, sessionID, messageID string) error {
	path := "/session/" + url.PathEscape(sessionID) + "/revert"
	body := map[string]string{"messageID": messageID}
	return c.do(ctx, "revert", http.MethodPost, path, body, nil)
}

// SubmitPrompt submits a replacement prompt to a session.
func (c *Client) SubmitPrompt(ctx context.Context, sessionID string, payload models.PromptPayload) error {
	path := "/session/" + url.PathEscape(sessionID) + "/prompt"
	return c.do(ctx, "submit_prompt", http.MethodPost, path, payload, nil)
}

// do executes one host API call with retry on 5xx and transport errors.
// The request is rebuilt per attempt so bodies can be re-sent.
func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	var reqBody []byte
	if body != nil {
		var err error
		reqBody, err = json.Marshal(body)
		if err != nil {
			return &HostError{Op: op, Message: "failed to marshal request", Cause: err}
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return &HostError{Op: op, Message: "request cancelled", Cause: ctx.Err()}
			}
		}

		respBody, status, err := c.doOnce(ctx, method, path, reqBody)
		if err != nil {
			lastErr = &HostError{Op: op, Message: "request failed", Retryable: true, Cause: err}
			continue
		}

		if status >= 500 {
			lastErr = &HostError{Op: op, StatusCode: status, Message: string(respBody), Retryable: true}
			continue
		}
		if status < 200 || status >= 300 {
			return &HostError{Op: op, StatusCode: status, Message: string(respBody)}
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return &HostError{Op: op, StatusCode: status, Message: "failed to decode response", Cause: err}
			}
		}
		return nil
	}

	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	return respBody, resp.StatusCode, nil
}

// HostError is a failed host API call.
type HostError struct {
	// Op names the host operation (abort, fetch_messages, revert, submit_prompt).
	Op string

	// StatusCode is the HTTP status, 0 for transport failures.
	StatusCode int

	// Message is the host's error body or a short description.
	Message string

	// Retryable marks transport errors and 5xx responses.
	Retryable bool

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *HostError) Error() string {
	msg := fmt.Sprintf("host %s failed", e.Op)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg = msg + ": " + e.Message
	}
	if e.Cause != nil {
		msg = msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements error unwrapping.
func (e *HostError) Unwrap() error {
	return e.Cause
}
