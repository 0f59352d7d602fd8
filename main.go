package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/7p-education/platform/internal/auth"
	"github.com/7p-education/platform/internal/cache"
	"github.com/7p-education/platform/internal/config"
	"github.com/7p-education/platform/internal/events"
	"github.com/7p-education/platform/internal/handlers"
	"github.com/7p-education/platform/internal/notify"
	"github.com/7p-education/platform/internal/payments"
	"github.com/7p-education/platform/internal/ratelimit"
	"github.com/7p-education/platform/internal/reporting"
	"github.com/7p-education/platform/internal/repositories/postgres"
	"github.com/7p-education/platform/internal/scheduler"
	"github.com/7p-education/platform/internal/services"
	"github.com/7p-education/platform/internal/storage"
	"github.com/7p-education/platform/internal/utils"
	"github.com/7p-education/platform/internal/validator"
	"github.com/7p-education/platform/pkg"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	slogLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	logger := utils.NewSlogLogger(slogLogger)

	reporter := reporting.NewReporter(cfg)

	// Initialize database
	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize Redis (if configured)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = pkg.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Redis unavailable, using in-memory fallbacks", "error", err)
			redisClient = nil
		}
	}

	// Initialize repositories
	repoManager := postgres.NewRepositoryManager(postgres.RepositoryConfig{
		DB:          db,
		RedisClient: redisClient,
	})
	if err := repoManager.Initialize(); err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}

	// Rate limiting: shared windows in Redis, process-local otherwise
	var limiter ratelimit.Limiter
	var sweeper scheduler.Sweeper
	if redisClient != nil {
		limiter = ratelimit.NewRedisLimiter(redisClient)
	} else {
		memory := ratelimit.NewMemoryLimiter()
		limiter, sweeper = memory, memory
	}

	// Token verification
	sessions := auth.NewSessions(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL)
	var providerVerifier auth.TokenVerifier
	if cfg.Auth.Provider == "casdoor" {
		providerVerifier = auth.NewCasdoorVerifier(cfg.Casdoor)
	} else {
		providerVerifier = auth.NewSupabaseVerifier(cfg.Auth.SupabaseJWTSecret)
	}
	verifier := auth.NewChainVerifier(sessions, providerVerifier)

	secretBox, err := auth.NewSecretBox(cfg.MFA.EncryptionKey)
	if err != nil {
		log.Fatalf("Failed to initialize MFA encryption: %v", err)
	}

	var google services.GoogleAuthenticator
	if provider := auth.NewGoogleProvider(cfg.Google); provider.Configured() {
		google = provider
	}

	var gateway payments.Gateway
	if cfg.Stripe.Enabled {
		gateway = payments.NewStripeGateway(cfg.Stripe)
	}

	var videos services.VideoSigner
	if client, err := pkg.NewSupabaseClient(cfg.Supabase); err == nil {
		videos = storage.NewVideoSigner(client, cfg.Supabase.URL, cfg.Supabase.VideoBucket)
	} else if !errors.Is(err, pkg.ErrSupabaseNotConfigured) {
		logger.Warn("Lesson videos disabled", "error", err)
	}

	// Event bus
	transport, err := events.NewTransport(cfg.Kafka, slogLogger)
	if err != nil {
		log.Fatalf("Failed to initialize event transport: %v", err)
	}
	eventRouter, err := events.NewRouter(transport.Subscriber, slogLogger)
	if err != nil {
		log.Fatalf("Failed to initialize event router: %v", err)
	}

	// Initialize validator
	validator := validator.New()

	// Initialize services
	serviceManager := services.NewDefaultServiceManager(db, repoManager.GetRepository(), slogLogger, validator, services.Dependencies{
		Config:    cfg,
		Publisher: events.NewWatermillPublisher(transport.Publisher, slogLogger),
		Gateway:   gateway,
		Mailer:    notify.NewMailer(cfg.SendGrid, slogLogger),
		Sessions:  sessions,
		SecretBox: secretBox,
		Google:    google,
		Limiter:   limiter,
		Videos:    videos,
	})
	if err := serviceManager.Initialize(context.Background()); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	if notifications := serviceManager.Notification(); notifications != nil {
		notifications.Register(eventRouter)
	}
	go func() {
		if err := eventRouter.Run(bgCtx); err != nil {
			logger.Error("Event router stopped", "error", err)
		}
	}()
	logger.Info("Event bus started", "transport", transport.Kind)

	jobs := scheduler.New(slogLogger)
	if err := jobs.Register(serviceManager.Maintenance(), sweeper); err != nil {
		log.Fatalf("Failed to schedule maintenance jobs: %v", err)
	}
	jobs.Start()

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Setup middleware
	handlers.SetupMiddleware(router, logger, reporter)

	healthChecks := map[string]handlers.HealthCheck{
		"database": repoManager.HealthCheck,
	}
	if redisClient != nil {
		healthChecks["redis"] = cache.NewCacheManager(redisClient).HealthCheck
	}

	// Initialize handlers
	handlerManager := handlers.NewHandlerManager(serviceManager, handlers.Options{
		Config:       cfg,
		Validator:    validator,
		Logger:       logger,
		Reporter:     reporter,
		Verifier:     verifier,
		Limiter:      limiter,
		HealthChecks: healthChecks,
	})

	// Setup routes
	handlerManager.SetupRoutes(router)

	// Create HTTP server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           handlers.CORSSettings(cfg.FrontendURL, !cfg.IsProduction()).Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", "port", cfg.Port, "environment", cfg.Environment,
			"payments", cfg.Stripe.Enabled, "auth_provider", cfg.Auth.Provider)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	jobs.Stop(ctx)

	stopBackground()
	if err := eventRouter.Close(); err != nil {
		logger.Error("Failed to close event router", "error", err)
	}

	// Shutdown services
	if err := serviceManager.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown services", "error", err)
	}

	if err := transport.Close(); err != nil {
		logger.Error("Failed to close event transport", "error", err)
	}

	reporter.Close()

	// Close database connection
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	// Close Redis connection
	if redisClient != nil {
		redisClient.Close()
	}

	logger.Info("Server exited")
}
