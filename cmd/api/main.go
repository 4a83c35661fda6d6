package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"heart-backend/cmd"
	"heart-backend/internal/api"
	"heart-backend/internal/monitoring"
	"heart-backend/internal/tracking"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
)

type APIConfig struct {
	APIPort             string `env:"API_PORT" envDefault:"8000"`
	ArtifactDir         string `env:"ARTIFACT_DIR" envDefault:"models"`
	ArtifactS3Prefix    string `env:"ARTIFACT_S3_PREFIX" envDefault:"heart-disease"`
	TrackingDatabaseURL string `env:"TRACKING_DATABASE_URL" envDefault:"tracking.db"`

	Store cmd.ArtifactStoreConfig
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := tracking.OpenDatabase(cfg.TrackingDatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to tracking database: %v", err)
	}
	if err := tracking.GetMigrator(db).Migrate(); err != nil {
		log.Fatalf("Failed to migrate tracking database: %v", err)
	}

	registry := prometheus.NewRegistry()
	metrics := monitoring.New(registry)

	// When a shared store is configured, artifacts are pulled down before serving.
	store, err := cmd.NewArtifactStore(context.Background(), cfg.Store)
	if err != nil {
		log.Fatalf("Failed to create artifact store: %v", err)
	}
	if store != nil {
		if err := store.DownloadDir(context.Background(), cfg.ArtifactS3Prefix, cfg.ArtifactDir); err != nil {
			slog.Error("error downloading artifacts from object store", "prefix", cfg.ArtifactS3Prefix, "error", err)
		}
	}

	service := api.NewPredictionService(db, metrics)
	if err := service.LoadArtifacts(cfg.ArtifactDir); err != nil {
		// The server still comes up so /health and /metrics stay reachable.
		slog.Error("error loading model artifacts, serving in degraded mode", "dir", cfg.ArtifactDir, "error", err)
	}

	// --- Chi Router Setup ---
	r := chi.NewRouter()

	// Middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)                    // Log requests
	r.Use(middleware.Recoverer)                 // Recover from panics
	r.Use(middleware.Timeout(60 * time.Second)) // Set request timeout

	service.AddRoutes(r)
	r.Method(http.MethodGet, "/metrics", monitoring.Handler(registry))

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}
