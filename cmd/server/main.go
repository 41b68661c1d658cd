package main

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nancybwi/DrainGuardHCM-sub000/internal"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/ai"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/ai/gemini"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/ai/mock"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/geo"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/handler"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/location"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/metrics"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/middleware"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/pipeline"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/repository"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/service"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/storage"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/worker"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	// Initialize repository
	repo := repository.New(db)

	// Initialize storage provider
	store, err := newStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	// Initialize the AI adjudicator
	adjudicator, err := newAdjudicator(cfg, logger)
	if err != nil {
		return fmt.Errorf("adjudicator initialization failed: %w", err)
	}

	// Initialize location intelligence
	places := geo.NewPlacesClient(cfg.GeoAPIKey, cfg.GeoRequestTimeout, logger)
	analyzer := location.NewAnalyzer(places, cfg.GeoSearchRadiusM, logger)

	// Optional default operator for auto-assignment
	var defaultOperator *uuid.UUID
	if cfg.DefaultOperatorID != "" {
		id, err := uuid.Parse(cfg.DefaultOperatorID)
		if err != nil {
			return fmt.Errorf("DEFAULT_OPERATOR_ID is not a valid UUID: %w", err)
		}
		defaultOperator = &id
	}

	// Assemble the validation pipeline
	coordinator := pipeline.New(repo, repo, store, adjudicator, analyzer, pipeline.Config{
		FingerprintWindow: cfg.FingerprintWindow,
		MinConfidence:     cfg.AIMinConfidence,
		DefaultOperatorID: defaultOperator,
	}, logger)

	// Operator workflow service and handlers
	reportService := service.NewReportService(repo, logger)
	reportHandler := handler.NewReportHandler(coordinator, reportService, logger)

	// Fingerprint retention janitor
	if cfg.JanitorEnabled {
		janitorCfg := worker.DefaultConfig()
		janitorCfg.Interval = cfg.JanitorInterval
		janitorCfg.RetentionWindow = cfg.FingerprintWindow

		janitor, err := worker.NewJanitor(repo, janitorCfg, logger)
		if err != nil {
			return fmt.Errorf("janitor initialization failed: %w", err)
		}
		janitor.Start(ctx)
		defer janitor.Stop()
	}

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handler.Health)
	mux.Handle("GET /metrics", metricsAuth(cfg, promhttp.Handler()))

	// Local storage serves uploaded images directly
	if cfg.StorageProvider == storage.ProviderLocal {
		filesFS := http.FileServer(http.Dir(cfg.LocalStoragePath))
		mux.Handle("GET /files/", http.StripPrefix("/files/", filesFS))
	}

	submitLimiter := middleware.NewRateLimiter(cfg.SubmitRateLimit, time.Minute, logger)
	reportHandler.Register(mux, submitLimiter.Limit)

	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	root := loggingMw.Handler(metrics.Middleware(mux))

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: root,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// newStorage builds the configured storage provider.
func newStorage(cfg *internal.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.StorageProvider {
	case storage.ProviderR2:
		return storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
	default:
		return storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
	}
}

// newAdjudicator builds the configured AI provider.
func newAdjudicator(cfg *internal.Config, logger *slog.Logger) (ai.Adjudicator, error) {
	switch cfg.AIProvider {
	case "gemini":
		return gemini.New(gemini.Config{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
			ProviderConfig: ai.ProviderConfig{
				MaxRetries:     cfg.AIMaxRetries,
				RetryBaseDelay: cfg.AIRetryBaseDelay,
				RequestTimeout: cfg.AIRequestTimeout,
			},
		}, logger)
	default:
		return mock.New(logger), nil
	}
}

// metricsAuth protects the metrics endpoint with basic auth when credentials
// are configured.
func metricsAuth(cfg *internal.Config, next http.Handler) http.Handler {
	if cfg.MetricsUsername == "" && cfg.MetricsPassword == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(cfg.MetricsUsername)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(cfg.MetricsPassword)) == 1
		if !ok || !userOK || !passOK {
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
