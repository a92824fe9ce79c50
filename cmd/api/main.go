package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"docverify/docs"
	"docverify/internal/analyzer"
	"docverify/internal/config"
	"docverify/internal/dispatch"
	handlers "docverify/internal/http/handler"
	"docverify/internal/http/middleware"
	"docverify/internal/intake"
	"docverify/internal/logging"
	"docverify/internal/metrics"
	"docverify/internal/otel"
	"docverify/internal/service"
	"docverify/internal/storage"
)

// @title Document Verification API
// @version 1.0
// @description Batch document upload, fraud analysis and verdict lookup.
// @BasePath /api
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	loc := cfg.Location()
	logger := logging.New(os.Stdout, loc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, logger)
	if err != nil {
		logger.Error("tracing_init_failed", "error", err.Error())
		os.Exit(1)
	}

	repo, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store_init_failed", "driver", cfg.Store.Driver, "error", err.Error())
		os.Exit(1)
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	domainMetrics, err := metrics.New(reg)
	if err != nil {
		logger.Error("metrics_init_failed", "error", err.Error())
		os.Exit(1)
	}
	httpMetrics, err := middleware.NewPrometheusMiddleware(reg, handlers.MetricsPath)
	if err != nil {
		logger.Error("metrics_init_failed", "error", err.Error())
		os.Exit(1)
	}

	client, err := analyzer.NewHTTP(cfg.Analyzer, logger)
	if err != nil {
		logger.Error("analyzer_init_failed", "error", err.Error())
		os.Exit(1)
	}
	dispatcher := dispatch.New(client,
		dispatch.WithWorkers(cfg.Analyzer.Workers),
		dispatch.WithTimeout(cfg.Analyzer.Timeout),
		dispatch.WithMaxBytes(cfg.Intake.MaxUploadBytes),
		dispatch.WithRateLimit(cfg.Analyzer.RPS, cfg.Analyzer.Burst),
		dispatch.WithMetrics(domainMetrics),
		dispatch.WithLogger(logger),
	)

	svcOpts := []service.Option{service.WithMetrics(domainMetrics), service.WithLogger(logger)}
	if cfg.MinIO.Enabled() {
		// Initialize reusable S3-compatible object storage client (MinIO-supported)
		objStore, err := storage.NewMinIO(cfg.MinIO)
		if err != nil {
			logger.Error("storage_init_failed", "endpoint", cfg.MinIO.Endpoint, "error", err.Error())
			os.Exit(1)
		}
		svcOpts = append(svcOpts, service.WithStorage(objStore))
		logger.Info("archive_enabled", "endpoint", cfg.MinIO.Endpoint, "bucket", cfg.MinIO.Bucket)
	}
	svc := service.NewVerificationService(repo,
		intake.New(cfg.Intake.MaxUploadBytes, cfg.Intake.AllowedContentTypes),
		dispatcher,
		svcOpts...,
	)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    int(cfg.Intake.MaxBatchBytes),
	})

	// Register global middleware
	app.Use(otelfiber.Middleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSAllowOrigins,
		AllowHeaders: "Content-Type,Authorization",
		AllowMethods: "GET,POST,OPTIONS",
	}))
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.Logger(loc))
	app.Use(httpMetrics.Handler())

	handlers.RegisterRoutes(app, cfg.APIPrefix, handlers.Deps{
		Service:  svc,
		Pinger:   repo,
		Gatherer: reg,
	})

	// Swagger UI with dynamic host and scheme
	docs.SwaggerInfo.BasePath = cfg.APIPrefix
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	addr := ":" + cfg.Port
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server_starting", "addr", addr, "store", cfg.Store.Driver, "analyzer_url", cfg.Analyzer.BaseURL)
		serveErr <- app.Listen(addr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("server_failed", "error", err.Error())
		}
	case <-ctx.Done():
		logger.Info("server_stopping")
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			logger.Error("server_shutdown_failed", "error", err.Error())
		}
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("tracing_shutdown_failed", "error", err.Error())
	}
}
