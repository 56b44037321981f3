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
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/austral-erp/austral-erp/internal/app"
	"github.com/austral-erp/austral-erp/internal/documents"
	"github.com/austral-erp/austral-erp/internal/masterdata"
	"github.com/austral-erp/austral-erp/internal/numbering"
	"github.com/austral-erp/austral-erp/internal/pricing"
	"github.com/austral-erp/austral-erp/internal/shared"
	"github.com/austral-erp/austral-erp/internal/stock"
	"github.com/austral-erp/austral-erp/internal/tax"
	"github.com/austral-erp/austral-erp/internal/treasury"
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

	dbpool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	masterdataRepo := masterdata.NewRepository(dbpool)

	numberingRepo := numbering.NewRepository(dbpool, cfg.LockTimeout)
	allocator := numbering.NewAllocator(numberingRepo)

	stockRepo := stock.NewRepository(dbpool, cfg.LockTimeout)
	stockService := stock.NewService(stockRepo, masterdataRepo, auditLogger)

	taxRepo := tax.NewRepository(dbpool)
	taxService := tax.NewService(taxRepo)

	pricingRepo := pricing.NewRepository(dbpool)
	priceResolver := pricing.NewResolver(pricingRepo, masterdataRepo)

	registry := documents.DefaultRegistry()
	documentsRepo := documents.NewRepository(dbpool, cfg.LockTimeout)

	treasuryRepo := treasury.NewRepository(dbpool)
	treasuryService := treasury.NewService(treasuryRepo, documentsRepo)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, logger)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	documentsService := documents.NewService(documentsRepo, registry, allocator, taxService, stockService, treasuryService, jobClient, logger)

	documentsHandler := documents.NewHandler(logger, documentsService, registry)
	taxHandler := tax.NewHandler(logger, taxService)
	pricingHandler := pricing.NewHandler(logger, priceResolver)
	stockHandler := stock.NewHandler(logger, stockService, stockRepo)
	treasuryHandler := treasury.NewHandler(logger, treasuryService, dbpool, idempotencyStore)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		DocumentsHandler: documentsHandler,
		TaxHandler:       taxHandler,
		PricingHandler:   pricingHandler,
		StockHandler:     stockHandler,
		TreasuryHandler:  treasuryHandler,
		JobHandler:       jobHandler,
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
