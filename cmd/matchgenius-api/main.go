// Package main is the entry point for the matchgenius-api server.
// Users and sessions live in Supabase; this service owns subscription state
// and reconciles it from Stripe webhooks.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmylchreest/matchgenius-api/internal/auth"
	"github.com/jmylchreest/matchgenius-api/internal/config"
	"github.com/jmylchreest/matchgenius-api/internal/database"
	"github.com/jmylchreest/matchgenius-api/internal/http/handlers"
	"github.com/jmylchreest/matchgenius-api/internal/http/mw"
	"github.com/jmylchreest/matchgenius-api/internal/http/routes"
	"github.com/jmylchreest/matchgenius-api/internal/logging"
	"github.com/jmylchreest/matchgenius-api/internal/repository"
	"github.com/jmylchreest/matchgenius-api/internal/service"
	"github.com/jmylchreest/matchgenius-api/internal/shutdown"
	"github.com/jmylchreest/matchgenius-api/internal/version"
	"github.com/jmylchreest/matchgenius-api/internal/worker"
)

func main() {
	// Local development reads .env; deployed environments set real env vars
	_ = godotenv.Load()

	// Initialize logger with TTY detection, source paths, and format control
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting matchgenius-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	if err := run(logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := database.Migrate(db, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	repos := repository.NewRepositories(db)

	services, err := service.NewServices(cfg, repos, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer services.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Delivery log and payload archive are written off the request path
	archiver := worker.NewArchiver(repos.WebhookEvent, services.Storage, worker.ArchiverConfig{
		QueueSize:   cfg.ArchiveQueueSize,
		Concurrency: cfg.ArchiveConcurrency,
	}, logger)
	services.Reconciler.SetArchiveSink(archiver)
	archiver.Start(ctx)

	var scheduler *worker.Scheduler
	if cfg.JobsEnabled {
		var pruner worker.EventPruner
		if services.Storage.IsEnabled() {
			pruner = services.Storage
		}
		var billing interface {
			worker.Resyncer
			worker.CatalogSyncer
		}
		if cfg.StripeEnabled() {
			billing = services.Billing
		}
		scheduler, err = worker.NewScheduler(billing, billing, pruner, worker.SchedulerConfig{
			ResyncSchedule:  cfg.ResyncSchedule,
			ResyncGrace:     cfg.ResyncGrace,
			CatalogSchedule: cfg.CatalogSchedule,
			PruneSchedule:   cfg.PruneSchedule,
			Retention:       cfg.ArchiveRetention,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		scheduler.Start()
	}

	sessions := auth.NewSessionVerifier(cfg.SupabaseJWTSecret, cfg.SessionIssuer())
	if cfg.SupabaseJWTSecret == "" {
		logger.Warn("SUPABASE_JWT_SECRET not set - session authentication will fail")
	}
	adminKey := auth.NewAdminKeyVerifier(cfg.AdminAPIKeyHash)

	idle := shutdown.NewIdleMonitor(shutdown.IdleMonitorConfig{
		Timeout:      cfg.IdleTimeout,
		Logger:       logger,
		ExcludePaths: []string{"/healthz", "/readyz", "/metrics"},
		Busy:         func() bool { return archiver.Pending() > 0 },
	})

	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(idle.Middleware)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(mw.Metrics)
	router.Use(mw.APIVersion())
	router.Use(mw.Cache(mw.DefaultCacheConfig()))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-API-Version", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Global rate limit by IP
	router.Use(httprate.LimitByIP(100, time.Minute))

	// Raw handlers: signature-verified webhooks need the unparsed body,
	// and the subscription read sets per-caller cache headers.
	stripeWebhook := handlers.NewStripeWebhookHandler(services.Verifier, services.Reconciler, logger)
	router.With(mw.RateLimitByIP(mw.DefaultRateLimitConfig().IPRequestsPerMinute*10)).
		Post("/api/v1/stripe/webhook", stripeWebhook.HandleWebhook)

	subscriptionHandler := handlers.NewSubscriptionHandler(services.SubscriptionCache, cfg.SubscriptionCacheMaxAge, logger)
	router.With(mw.OptionalAuth(sessions, cfg.SessionCookieName)).
		Get("/api/v1/subscription", subscriptionHandler.GetSubscription)

	if cfg.AuthWebhookSecret != "" {
		authWebhook, err := handlers.NewAuthWebhookHandler(cfg.AuthWebhookSecret, services.Billing, logger)
		if err != nil {
			return fmt.Errorf("invalid AUTH_WEBHOOK_SECRET: %w", err)
		}
		router.Post("/api/v1/webhooks/auth", authWebhook.HandleWebhook)
		logger.Info("auth webhook endpoint enabled")
	}

	router.Handle("/metrics", promhttp.Handler())

	// Huma routes, authenticated per operation security
	api := humachi.New(router, routes.NewHumaConfig(cfg.BaseURL))
	api.UseMiddleware(mw.HumaAuth(api, mw.HumaAuthConfig{
		Verifier:   sessions,
		CookieName: cfg.SessionCookieName,
		AdminKey:   adminKey,
	}))

	h := &routes.Handlers{
		HealthCheck: handlers.HealthCheck,
		Livez:       handlers.Livez,
		Readyz:      handlers.NewReadyzHandler(db).Readyz,
		Billing:     handlers.NewBillingHandler(services.Billing, logger),
	}
	if adminKey.Enabled() {
		h.Admin = handlers.NewAdminHandler(services.Billing, repos.WebhookEvent, services.Storage, logger)
	} else {
		logger.Info("ADMIN_API_KEY_HASH not set - admin endpoints disabled")
	}
	routes.Register(api, h)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL, "mode", cfg.DeploymentMode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	idle.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigChan:
		logger.Info("shutting down server", "signal", sig.String())
	case <-idle.Done():
		logger.Info("shutting down idle server")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}
	idle.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Stop producers before the archiver so queued deliveries are written
	if scheduler != nil {
		scheduler.Stop()
	}
	archiver.Stop()
	return nil
}
