package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"offerapi/internal/auth"
	"offerapi/internal/config"
	"offerapi/internal/database"
	"offerapi/internal/database/migration"
	handlers "offerapi/internal/http/handler"
	"offerapi/internal/http/middleware"
	"offerapi/internal/otel"
	"offerapi/internal/repository"
	"offerapi/internal/repository/file"
	"offerapi/internal/repository/postgres"
	"offerapi/internal/service"
	"offerapi/internal/storage"
)

func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	loc := time.UTC

	ctx := context.Background()

	// Tracing is fully env-driven and degrades to a noop when unconfigured
	shutdownTracing, err := otel.Init(ctx, loc)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer shutdownTracing(ctx)

	// Select the persistence backend
	var (
		db          *sql.DB
		offerRepo   repository.OfferRepository
		versionRepo repository.VersionRepository
	)
	switch cfg.Storage.Backend {
	case "file":
		store, err := file.Open(cfg.Storage.FilePath)
		if err != nil {
			log.Fatalf("failed to open file store: %v", err)
		}
		offerRepo = store
		versionRepo = store
	default:
		db, err = database.NewPostgres(cfg.Database)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := migration.EnsureMigrated(ctx, db, loc, cfg.Database.Host); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}

		offerRepo = postgres.NewOfferPostgres(db)
		versionRepo = postgres.NewVersionPostgres(db)
	}

	// Object storage is optional; without it publishing skips the public
	// snapshot export
	var objStore storage.Storage
	if cfg.MinIO.Endpoint != "" {
		objStore, err = storage.NewMinIO(cfg.MinIO)
		if err != nil {
			log.Fatalf("failed to initialize object storage: %v", err)
		}
	}

	tokens := auth.NewService(cfg.Auth.Tokens)
	offerSvc := service.NewOfferService(offerRepo, versionRepo, objStore)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
	})

	// Register global middleware
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.Logger())

	registry := prometheus.NewRegistry()
	promMiddleware, err := middleware.NewPrometheusMiddleware(registry)
	if err != nil {
		log.Fatalf("failed to initialize metrics: %v", err)
	}
	app.Use(promMiddleware.Handler())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Register HTTP routes with injected services
	handlers.RegisterRoutes(app, db, tokens, offerSvc)

	addr := ":" + cfg.Port

	if err := app.Listen(addr); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
