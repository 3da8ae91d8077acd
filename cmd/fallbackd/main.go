// fallbackd watches an agent-platform host for rate-limited sessions
// and resubmits the interrupted request against a fallback model.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/llmops/session-fallback/app"
	"github.com/llmops/session-fallback/config"
	"github.com/llmops/session-fallback/internal/observability"
	"github.com/llmops/session-fallback/routes"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fallbackd: %v", err)
	}
}

func run() error {
	cfg, err := config.New()
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Admin.ShutdownTimeout)
		defer cancel()
		if err := deps.Close(closeCtx); err != nil {
			logger.Error("shutdown errors", zap.Error(err))
		}
	}()

	errCh := make(chan error, 2)

	var adminServer *http.Server
	if cfg.Admin.Enabled {
		adminServer = &http.Server{
			Addr:         cfg.Admin.Address(),
			Handler:      routes.SetupRoutes(deps),
			ReadTimeout:  cfg.Admin.ReadTimeout,
			WriteTimeout: cfg.Admin.WriteTimeout,
		}
		go func() {
			logger.Info("admin server listening", zap.String("addr", adminServer.Addr))
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	if cfg.Fallback.Enabled {
		go func() {
			logger.Info("subscribing to host event stream",
				zap.String("host", cfg.Host.BaseURL),
				zap.String("fallback_model", cfg.Fallback.Model))
			errCh <- deps.Events.Run(ctx, deps.Controller.OnEvent)
		}()
	} else {
		logger.Info("fallback disabled, not subscribing to host events")
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("component failed", zap.Error(err))
			runErr = err
		}
		stop()
	}

	// Both exits drain in-flight admin requests before returning.
	if adminServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Admin.ShutdownTimeout)
		defer cancel()
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin server shutdown failed", zap.Error(err))
		}
	}

	return runErr
}
