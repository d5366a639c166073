package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockbridge/stockbridge/internal/app"
	"github.com/stockbridge/stockbridge/internal/documents"
	"github.com/stockbridge/stockbridge/internal/erp"
	"github.com/stockbridge/stockbridge/internal/erp/b1"
	"github.com/stockbridge/stockbridge/internal/masterdata/warehouses"
	"github.com/stockbridge/stockbridge/internal/observability"
	"github.com/stockbridge/stockbridge/internal/platform/cache"
	"github.com/stockbridge/stockbridge/internal/platform/db"
	"github.com/stockbridge/stockbridge/internal/posting"
	"github.com/stockbridge/stockbridge/internal/shared"
	"github.com/stockbridge/stockbridge/internal/validation"
	"github.com/stockbridge/stockbridge/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, db.Config{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns, MinConns: cfg.PGMinConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, lookup cache disabled", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}()

	erpClient, err := b1.NewClient(b1.Config{
		BaseURL:   cfg.ERPBaseURL,
		Username:  cfg.ERPUsername,
		Password:  cfg.ERPPassword,
		CompanyDB: cfg.ERPCompanyDB,
		Timeout:   cfg.ERPTimeout,
	}, logger)
	if err != nil {
		logger.Error("init erp client", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	var lookupCache validation.CachePort
	if redisClient != nil {
		lookupCache = erp.NewLookupCache(redisClient, cfg.LookupCacheTTL)
	}
	batcher := validation.NewBatcher(erpClient, lookupCache,
		cfg.ValidationChunkSize, cfg.ValidationConcurrency, logger).
		WithMetrics(validation.NewMetrics(metrics.Registerer()))

	auditLogger := shared.NewAuditLogger(pool)
	docRepo := documents.NewRepository(pool)
	docService := documents.NewService(docRepo, batcher, auditLogger, logger)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		_ = asynqClient.Close()
	}()

	coordinator := posting.NewCoordinator(posting.Config{
		Documents:   docService,
		Remote:      erpClient,
		Attempts:    posting.NewRepository(pool),
		Reservation: shared.NewIdempotencyStore(pool),
		Scheduler:   jobs.NewScheduler(asynqClient, cfg.PostRetryBackoff),
		Metrics:     posting.NewMetrics(metrics.Registerer()),
		MaxAttempts: cfg.PostMaxAttempts,
		Logger:      logger,
	})
	docService.SetPostingTrigger(coordinator)

	warehouseService := warehouses.NewService(warehouses.NewRepository(pool))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		_ = inspector.Close()
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		DocumentsHandler: documents.NewHandler(logger, docService, auditLogger),
		PostingHandler:   posting.NewHandler(logger, coordinator),
		WarehouseHandler: warehouses.NewHandler(logger, warehouseService),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
