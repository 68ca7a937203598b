package cmd

import (
	"context"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	httpadapter "github.com/vectorbound/boundaryplane/internal/adapter/inbound/http"
	"github.com/vectorbound/boundaryplane/internal/adapter/outbound/embedding"
	"github.com/vectorbound/boundaryplane/internal/adapter/outbound/memory"
	"github.com/vectorbound/boundaryplane/internal/adapter/outbound/sqlstore"
	"github.com/vectorbound/boundaryplane/internal/config"
	"github.com/vectorbound/boundaryplane/internal/domain/bridge"
	"github.com/vectorbound/boundaryplane/internal/domain/bundle"
	"github.com/vectorbound/boundaryplane/internal/domain/deployment"
	"github.com/vectorbound/boundaryplane/internal/domain/refresh"
	"github.com/vectorbound/boundaryplane/internal/domain/telemetry"
	"github.com/vectorbound/boundaryplane/internal/port/outbound"
	"github.com/vectorbound/boundaryplane/internal/service"
)

var devMode bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the enforcement HTTP server",
	Long: `Start the boundaryplane enforcement server.

The server exposes the data plane's HTTP surface (POST /v1/enforce,
the Bundle CRUD endpoints, and rule refresh/telemetry query), backed by
an anchor repository (in-memory or sqlite), an outbound embedding
client, and, when enabled, an in-memory rate limiter.

Examples:
  # Start with config file settings
  boundaryctl serve

  # Start in development mode (debug logging, in-memory anchors)
  boundaryctl serve --dev`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging, in-memory anchor repository)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := setupTelemetrySDK(ctx)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry SDK: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown error", "error", err)
		}
	}()

	return serve(ctx, cfg, logger)
}

// serve wires every adapter and service together and blocks until ctx is
// cancelled or the listener fails.
func serve(ctx context.Context, cfg *config.PlaneConfig, logger *slog.Logger) error {
	b := bridge.New()

	repo, closeRepo, err := buildAnchorRepository(cfg)
	if err != nil {
		return fmt.Errorf("failed to build anchor repository: %w", err)
	}
	if closeRepo != nil {
		defer func() { _ = closeRepo() }()
	}

	refreshInterval, _ := time.ParseDuration(cfg.Refresh.Interval)
	scheduler := refresh.NewScheduler(b, repo, refreshInterval, cfg.Refresh.Disabled, logger)
	if stats := scheduler.RefreshNow(ctx); stats.Err != nil {
		logger.Warn("initial anchor refresh failed, starting with an empty bridge", "error", stats.Err)
	} else {
		logger.Info("initial anchor refresh complete", "rules", stats.RulesRefreshed)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	connectTimeout, _ := time.ParseDuration(cfg.Embedding.ConnectTimeout)
	requestTimeout, _ := time.ParseDuration(cfg.Embedding.RequestTimeout)
	embeddingClient := embedding.NewHTTPClient(cfg.Embedding.Endpoint, connectTimeout, requestTimeout)

	recorder := telemetry.NewRecorder(
		telemetry.RotationPolicy{MaxRecordsPerSegment: cfg.Telemetry.MaxRecordsPerSegment},
		backpressureMode(cfg.Telemetry.Backpressure),
		cfg.Telemetry.MaxBacklogSegments*cfg.Telemetry.MaxRecordsPerSegment,
	)

	var rateLimiter outbound.RateLimiter
	if cfg.RateLimit.Enabled {
		cleanupInterval, _ := time.ParseDuration(cfg.RateLimit.CleanupInterval)
		maxTTL, _ := time.ParseDuration(cfg.RateLimit.MaxTTL)
		rl := memory.NewRateLimiterWithConfig(cleanupInterval, maxTTL)
		rl.StartCleanup(ctx)
		defer rl.Stop()
		rateLimiter = rl
		logger.Info("rate limiting enabled", "cleanup_interval", cleanupInterval, "max_ttl", maxTTL)
	}

	bundleSvc, err := bundle.NewService()
	if err != nil {
		return fmt.Errorf("failed to create bundle service: %w", err)
	}
	deploymentMgr := deployment.NewManager(b, logger)
	startAutoRollbackLoop(ctx, deploymentMgr, logger)

	enforcementSvc := service.NewEnforcementService(b, embeddingClient, recorder, logger)
	enforcementSvc.DefaultAllow = cfg.FailOpen
	if rateLimiter != nil {
		enforcementSvc.WithRateLimiter(rateLimiter)
	}
	enforcementSvc.WithDeploymentManager(deploymentMgr)

	registry := prometheus.NewRegistry()
	metrics := httpadapter.NewMetrics(registry)

	var adminKeys *httpadapter.AdminKeyStore
	if len(cfg.Security.AdminAPIKeyHashes) > 0 {
		adminKeys = httpadapter.NewAdminKeyStore(cfg.Security.AdminAPIKeyHashes...)
	} else {
		logger.Warn("no admin_api_key_hashes configured: bundle CRUD endpoints are unauthenticated")
	}

	handler := httpadapter.NewEnforcementHandler(
		httpadapter.WithEnforcementService(enforcementSvc),
		httpadapter.WithBundleService(bundleSvc),
		httpadapter.WithDeploymentManager(deploymentMgr),
		httpadapter.WithScheduler(scheduler),
		httpadapter.WithBridge(b),
		httpadapter.WithRecorder(recorder),
		httpadapter.WithAdminKeyStore(adminKeys),
		httpadapter.WithHandlerMetrics(metrics),
		httpadapter.WithHandlerLogger(logger),
	)

	healthChecker := httpadapter.NewHealthChecker(recorder, scheduler, Version)

	mux := stdhttp.NewServeMux()
	mux.Handle("/health", healthChecker.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", handler.Routes())

	chain := httpadapter.RequestIDMiddleware(logger)(
		httpadapter.DNSRebindingProtection(cfg.Security.AllowedOrigins)(
			httpadapter.RealIPMiddleware(
				httpadapter.MetricsMiddleware(metrics)(mux),
			),
		),
	)

	server := &stdhttp.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           chain,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("boundaryplane starting",
			"version", Version,
			"dev_mode", cfg.DevMode,
			"http_addr", cfg.Server.HTTPAddr,
			"anchor_driver", cfg.AnchorRepository.Driver,
			"fail_open", cfg.FailOpen,
			"rules", b.RuleCount(),
		)
		if err := server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("boundaryplane stopped")
	return nil
}

// autoRollbackCheckInterval is how often the background loop evaluates
// every Active deployment's health window against its thresholds.
const autoRollbackCheckInterval = 10 * time.Second

// startAutoRollbackLoop runs deploymentMgr.CheckAutoRollback on a ticker
// until ctx is cancelled, the same ticker-plus-context-cancellation shape
// as the refresh scheduler's background loop.
func startAutoRollbackLoop(ctx context.Context, deploymentMgr *deployment.Manager, logger *slog.Logger) {
	go func() {
		ticker := time.NewTicker(autoRollbackCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if rolledBack := deploymentMgr.CheckAutoRollback(now); len(rolledBack) > 0 {
					logger.Warn("auto-rollback triggered", "versions", rolledBack)
				}
			}
		}
	}()
}

// buildAnchorRepository selects the anchor repository backend per
// cfg.AnchorRepository.Driver. The returned close func is nil for the
// memory driver, which owns no resources to release.
func buildAnchorRepository(cfg *config.PlaneConfig) (outbound.AnchorRepository, func() error, error) {
	switch cfg.AnchorRepository.Driver {
	case "sqlite":
		repo, err := sqlstore.Open(cfg.AnchorRepository.DSN)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	default:
		return memory.NewAnchorRepository(), nil, nil
	}
}

func backpressureMode(s string) telemetry.BackpressureMode {
	if s == "spill_to_compact" {
		return telemetry.BackpressureSpillToCompact
	}
	return telemetry.BackpressureBlockThenDrop
}

// parseLogLevel converts a string log level to slog.Level. Returns
// slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
