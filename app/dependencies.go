// Package app wires the daemon's components together. Dependencies is
// the central dependency injection point.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/llmops/session-fallback/config"
	"github.com/llmops/session-fallback/hostclient"
	"github.com/llmops/session-fallback/models"
	"github.com/llmops/session-fallback/repositories"
	"github.com/llmops/session-fallback/repositories/postgres"
	"github.com/llmops/session-fallback/services/audit"
	"github.com/llmops/session-fallback/services/fallback"
	"github.com/llmops/session-fallback/services/matcher"
	"github.com/llmops/session-fallback/services/state"
)

const auditStopTimeout = 10 * time.Second

// Dependencies holds all daemon dependencies.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	DB     *postgres.DB // nil when the audit sink is disabled

	// Audit sink
	AuditRepo repositories.FallbackAttemptRepository
	Auditor   *audit.Service

	// Core components
	Store      *state.Store
	Matcher    *matcher.Matcher
	HostClient *hostclient.Client
	Events     *hostclient.EventStream
	Controller *fallback.Controller
}

// NewDependencies creates and wires up all daemon dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initAudit(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize audit sink: %w", err)
	}

	if err := deps.initCore(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize fallback components: %w", err)
	}

	logger.Info("all dependencies initialized")
	return deps, nil
}

// initAudit connects the optional PostgreSQL audit sink. A nil
// AuditDatabase config leaves the sink disabled.
func (d *Dependencies) initAudit(ctx context.Context, cfg *config.Config) error {
	if cfg.AuditDatabase == nil {
		d.Logger.Info("audit database not configured, attempt recording disabled")
		return nil
	}

	db, err := postgres.NewDB(*cfg.AuditDatabase, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect audit database: %w", err)
	}
	d.DB = db

	if err := db.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	d.AuditRepo = postgres.NewAuditRepository(db, d.Logger)
	d.Auditor = audit.NewService(d.AuditRepo, d.Logger)
	d.Auditor.Start()

	return nil
}

// initCore builds the host client, event stream, and fallback
// controller.
func (d *Dependencies) initCore(cfg *config.Config) error {
	hostCfg := hostclient.Config{
		BaseURL:    cfg.Host.BaseURL,
		APIKey:     cfg.Host.APIKey,
		Timeout:    cfg.Host.Timeout,
		MaxRetries: cfg.Host.MaxRetries,
		RetryDelay: cfg.Host.RetryDelay,
	}
	d.HostClient = hostclient.New(hostCfg, d.Logger)
	d.Events = hostclient.NewEventStream(hostCfg, d.Logger)

	d.Store = state.NewStore()
	d.Matcher = matcher.New(cfg.Fallback.Patterns)

	model, err := models.ParseModelRef(cfg.Fallback.Model)
	if err != nil {
		return fmt.Errorf("invalid fallback model: %w", err)
	}

	controllerLogger := d.Logger
	if !cfg.Fallback.Logging {
		controllerLogger = zap.NewNop()
	}

	// A nil Recorder disables attempt recording in the controller.
	var recorder fallback.Recorder
	if d.Auditor != nil {
		recorder = d.Auditor
	}

	d.Controller = fallback.NewController(
		fallback.Config{
			Model:       model,
			Cooldown:    cfg.Fallback.Cooldown,
			SettleDelay: cfg.Fallback.SettleDelay,
		},
		d.HostClient,
		d.Store,
		d.Matcher,
		recorder,
		controllerLogger,
	)

	d.Logger.Info("fallback controller initialized",
		zap.String("fallback_model", model.String()),
		zap.Duration("cooldown", cfg.Fallback.Cooldown),
		zap.Int("patterns", len(d.Matcher.Patterns())))

	return nil
}

// Close gracefully shuts down all dependencies.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Auditor != nil {
		if err := d.Auditor.Stop(auditStopTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close audit database: %w", err))
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
