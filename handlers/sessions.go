package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/llmops/session-fallback/app"
	"github.com/llmops/session-fallback/utils"
)

const defaultAttemptLimit = 20

// SessionsHandler returns the current per-session fallback state.
func SessionsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := deps.Store.Snapshot()
		_ = utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"count":    len(snapshot),
			"sessions": snapshot,
		})
	}
}

// SessionAttemptsHandler returns the most recent recorded fallback
// attempts for one session. Requires the audit sink.
func SessionAttemptsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.AuditRepo == nil {
			_ = utils.WriteNotFound(w, "audit sink not configured")
			return
		}

		sessionID := chi.URLParam(r, "id")
		limit := defaultAttemptLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		attempts, err := deps.AuditRepo.RecentBySession(r.Context(), sessionID, limit)
		if err != nil {
			deps.Logger.Error("failed to load fallback attempts",
				zap.String("session_id", sessionID),
				zap.Error(err))
			_ = utils.WriteInternalServerError(w, "failed to load attempts")
			return
		}

		_ = utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"session_id": sessionID,
			"count":      len(attempts),
			"attempts":   attempts,
		})
	}
}
