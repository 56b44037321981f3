package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/austral-erp/austral-erp/internal/app"
	"github.com/austral-erp/austral-erp/internal/documents"
	"github.com/austral-erp/austral-erp/internal/fiscal"
	"github.com/austral-erp/austral-erp/internal/platform/cache"
	"github.com/austral-erp/austral-erp/internal/shared"
	"github.com/austral-erp/austral-erp/jobs"
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

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
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
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	registry := documents.DefaultRegistry()
	documentsRepo := documents.NewRepository(pool, cfg.LockTimeout)
	authStore := documents.NewAuthorizationStore(documentsRepo, registry)

	credentialStore := fiscal.NewCredentialStore(pool)
	authority := fiscal.NewHTTPAuthority(cfg.FiscalBaseURL, cfg.FiscalTimeout)
	tokenProvider := fiscal.NewTokenProvider(redisClient, authority)
	fiscalService := fiscal.NewService(authStore, credentialStore, tokenProvider, authority, logger)

	idempotencyStore := shared.NewIdempotencyStore(pool)

	var cron []jobs.CronRegistration
	if cfg.FiscalWarmupCron != "" {
		warmupTask, err := jobs.NewFiscalTokenWarmupTask(fiscal.ServiceInvoicing)
		if err != nil {
			logger.Error("build warmup task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.FiscalWarmupCron,
			Task:    warmupTask,
			Options: []asynq.Option{asynq.MaxRetry(3)},
		})
	}
	cron = append(cron, jobs.CronRegistration{
		Spec: "45 3 * * *",
		Task: jobs.NewIdempotencyCleanupTask(),
	})

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskFiscalAuthorize, Handler: jobs.NewFiscalAuthorizeHandler(fiscalService, logger)},
			{Type: jobs.TaskFiscalTokenWarmup, Handler: jobs.NewFiscalTokenWarmupHandler(credentialStore, tokenProvider, logger)},
			{Type: jobs.TaskIdempotencyCleanup, Handler: jobs.NewIdempotencyCleanupHandler(idempotencyStore, logger)},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
