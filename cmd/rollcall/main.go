package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"gorm.io/gorm/logger"

	"github.com/rollcall/rollcall/internal/config"
	"github.com/rollcall/rollcall/internal/database"
	"github.com/rollcall/rollcall/internal/handlers"
	"github.com/rollcall/rollcall/internal/jobs"
	"github.com/rollcall/rollcall/internal/middleware"
	"github.com/rollcall/rollcall/internal/notify"
	"github.com/rollcall/rollcall/internal/rules"
	"github.com/rollcall/rollcall/internal/services"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting Rollcall identity resolver...")

	if cfg.AdminPassword == "" {
		log.Fatalf("ADMIN_PASSWORD is not set")
	}

	passwordHash, err := middleware.HashPassword(cfg.AdminPassword)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	jwtAuthMiddleware := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: passwordHash,
		JWTSecret:         cfg.JWTSecret,
		JWTExpiryHours:    cfg.JWTExpiryHours,
		SkipPaths: []string{
			"/health",
			"/auth/login",
		},
	})
	log.Printf("JWT authentication enabled for user: %s", cfg.AdminUsername)

	// Database
	if err := database.Connect(cfg.DatabaseURL, logger.Warn); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}
	if err := database.InitializeDefaults(); err != nil {
		log.Fatalf("Failed to initialize database defaults: %v", err)
	}

	// Services
	identityService := services.NewIdentityService(database.GetDB())
	if err := identityService.RebuildIndex(); err != nil {
		log.Fatalf("Failed to build alias index: %v", err)
	}
	log.Printf("Alias index built")

	resolverService := services.NewResolverService(identityService)

	dismissRules, err := rules.Load(cfg.DismissRulesPath)
	if err != nil {
		log.Fatalf("Failed to load dismiss rules from %s: %v", cfg.DismissRulesPath, err)
	}
	resolverService.SetDismissRules(dismissRules)
	log.Printf("Loaded %d dismiss rule(s)", dismissRules.Len())

	settings, err := resolverService.GetSettings()
	if err != nil {
		log.Fatalf("Failed to load resolver settings: %v", err)
	}
	if settings.NotifyReviewQueue && cfg.SlackBotToken != "" && cfg.SlackReviewChannel != "" {
		resolverService.SetNotifier(notify.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackReviewChannel))
		log.Printf("Slack review-queue notifications enabled for channel %s", cfg.SlackReviewChannel)
	}

	mergeService := services.NewMergeService(identityService)
	reviewService := services.NewReviewService(identityService)
	attendanceService := services.NewAttendanceService(identityService)
	ingestService := services.NewIngestService(resolverService, cfg.IngestWorkers)

	// Handlers
	httpHandler := handlers.NewHTTPHandler()
	apiHandler := handlers.NewAPIHandler(identityService, resolverService, mergeService, reviewService, attendanceService, ingestService)
	authHandler := handlers.NewAuthHandler(jwtAuthMiddleware)

	mux := http.NewServeMux()
	httpHandler.SetupRoutes(mux)
	apiHandler.SetupRoutes(mux)
	authHandler.SetupRoutes(mux)

	corsMiddleware := middleware.NewCORSMiddleware() // Allow all origins
	handler := middleware.RequestIDMiddleware(corsMiddleware.Wrap(jwtAuthMiddleware.Wrap(mux)))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: handler,
	}

	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Background review sweeper
	sweeper := jobs.NewReviewSweeperJob(identityService, resolverService, reviewService)
	stopSweeper := make(chan struct{})
	go sweeper.Start(stopSweeper)

	log.Printf("Health check endpoint: http://localhost:%d/health", cfg.HTTPPort)
	log.Printf("API base URL: http://localhost:%d/api", cfg.HTTPPort)

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Received shutdown signal, cleaning up...")

	close(stopSweeper)
	ingestService.Stop()

	if err := httpServer.Close(); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}
	if err := database.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}

	log.Println("Shutdown complete")
}
