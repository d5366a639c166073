package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/stockbridge/stockbridge/internal/app"
	"github.com/stockbridge/stockbridge/internal/documents"
	"github.com/stockbridge/stockbridge/internal/erp"
	"github.com/stockbridge/stockbridge/internal/erp/b1"
	"github.com/stockbridge/stockbridge/internal/platform/cache"
	"github.com/stockbridge/stockbridge/internal/platform/db"
	"github.com/stockbridge/stockbridge/internal/posting"
	"github.com/stockbridge/stockbridge/internal/shared"
	"github.com/stockbridge/stockbridge/internal/validation"
	"github.com/stockbridge/stockbridge/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

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
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		_ = redisClient.Close()
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

	lookupCache := erp.NewLookupCache(redisClient, cfg.LookupCacheTTL)
	batcher := validation.NewBatcher(erpClient, lookupCache,
		cfg.ValidationChunkSize, cfg.ValidationConcurrency, logger)

	auditLogger := shared.NewAuditLogger(pool)
	docService := documents.NewService(documents.NewRepository(pool), batcher, auditLogger, logger)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		_ = asynqClient.Close()
	}()

	idemStore := shared.NewIdempotencyStore(pool)
	coordinator := posting.NewCoordinator(posting.Config{
		Documents:   docService,
		Remote:      erpClient,
		Attempts:    posting.NewRepository(pool),
		Reservation: idemStore,
		Scheduler:   jobs.NewScheduler(asynqClient, cfg.PostRetryBackoff),
		MaxAttempts: cfg.PostMaxAttempts,
		Logger:      logger,
	})
	docService.SetPostingTrigger(coordinator)

	retryJob := jobs.NewPostingRetryJob(coordinator, logger)
	lookupJob := jobs.NewLookupCleanupJob(lookupCache, logger)
	idemJob := jobs.NewIdempotencyCleanupJob(idemStore, 0, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPostingRetry, Handler: retryJob.Handle},
			{Type: jobs.TaskLookupCleanup, Handler: lookupJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: idemJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: jobs.NewLookupCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: "30 3 * * 0", Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
