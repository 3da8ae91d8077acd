package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/llmops/session-fallback/app"
	"github.com/llmops/session-fallback/utils"
)

// HealthCheck returns a simple liveness handler
func HealthCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// ReadinessCheck performs a more thorough readiness check. The audit
// database is only checked when configured; without it the daemon is
// still fully functional.
func ReadinessCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := "ready"
		checks := map[string]string{}

		if deps.DB == nil {
			checks["audit_database"] = "disabled"
		} else if err := deps.DB.HealthCheck(ctx); err != nil {
			status = "not_ready"
			checks["audit_database"] = "unhealthy"
			deps.Logger.Error("audit database health check failed", zap.Error(err))
		} else {
			checks["audit_database"] = "healthy"
		}

		if deps.Config.Fallback.Enabled {
			checks["fallback"] = "enabled"
		} else {
			checks["fallback"] = "disabled"
		}

		code := http.StatusOK
		if status != "ready" {
			code = http.StatusServiceUnavailable
		}
		_ = utils.WriteJSON(w, code, map[string]interface{}{
			"status": status,
			"checks": checks,
		})
	}
}

// StatusHandler returns daemon status information
func StatusHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"version":        "0.1.0",
			"environment":    deps.Config.Environment,
			"fallback_model": deps.Config.Fallback.Model,
			"cooldown":       deps.Config.Fallback.Cooldown.String(),
			"patterns":       len(deps.Matcher.Patterns()),
			"audit_enabled":  deps.DB != nil,
		})
	}
}
