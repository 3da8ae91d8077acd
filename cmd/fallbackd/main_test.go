package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ComponentFailureShutsDownCleanly(t *testing.T) {
	t.Setenv("FALLBACK_MODEL", "anthropic/claude-haiku")
	// Passes config validation but the event stream rejects the scheme,
	// exercising the component-error exit with the admin server up.
	t.Setenv("HOST_BASE_URL", "ftp://127.0.0.1:4096")
	t.Setenv("ADMIN_ENABLED", "true")
	t.Setenv("PORT", "0")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "")

	done := make(chan error, 1)
	go func() { done <- run() }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported host base URL scheme")
	case <-time.After(5 * time.Second):
		t.Fatal("run did not exit after component failure")
	}
}
