package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"docvault/internal/access"
	"docvault/internal/config"
	"docvault/internal/database"
	"docvault/internal/database/migration"
	handlers "docvault/internal/http/handler"
	"docvault/internal/http/middleware"
	"docvault/internal/mirror"
	"docvault/internal/notify"
	"docvault/internal/otel"
	"docvault/internal/repository/postgres"
	"docvault/internal/service"
)

func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	loc := time.UTC
	ctx := context.Background()

	shutdownTracing, err := otel.Init(ctx, loc)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	// Initialize PostgreSQL connection (with pooling via database/sql)
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, loc, cfg.Database.Host); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// Select the blob mirror backend: local disk or S3-compatible store
	var blobs mirror.Mirror
	switch cfg.Storage.Driver {
	case "minio":
		blobs, err = mirror.NewMinIO(cfg.Storage.MinIO)
	default:
		blobs, err = mirror.NewFS(cfg.Storage.Root)
	}
	if err != nil {
		log.Fatalf("failed to initialize storage mirror: %v", err)
	}

	// Repositories, policy, workflow collaborators
	itemRepo := postgres.NewItemPostgres(db)
	requestRepo := postgres.NewAccessRequestPostgres(db)

	evaluator := access.NewEvaluator(requestRepo)
	resolver := service.NewPathResolver(itemRepo, blobs)

	notifier := notify.NewCampaign(cfg.Notify)
	scheduler := notify.NewScheduler()
	defer scheduler.Stop()

	itemSvc := service.NewItemService(itemRepo, blobs, resolver, evaluator, logger)
	treeSvc := service.NewTreeService(itemRepo, blobs, logger)
	requestSvc := service.NewAccessRequestService(
		requestRepo,
		itemRepo,
		notifier,
		scheduler,
		time.Duration(cfg.Notify.ProcessedDelayMin)*time.Minute,
		logger,
	)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
	})

	// Register global middleware
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.Logger())
	app.Use(otelfiber.Middleware())

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	promMiddleware, err := middleware.NewPrometheusMiddleware(registry)
	if err != nil {
		log.Fatalf("failed to initialize metrics: %v", err)
	}
	app.Use(promMiddleware.Handler())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Register HTTP routes with injected services
	handlers.RegisterRoutes(app, db, itemSvc, treeSvc, requestSvc)

	addr := ":" + cfg.Port

	if err := app.Listen(addr); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
