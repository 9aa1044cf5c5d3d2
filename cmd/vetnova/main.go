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
	"github.com/joho/godotenv"

	"github.com/vetnova/vetnova/internal/accounting"
	"github.com/vetnova/vetnova/internal/app"
	"github.com/vetnova/vetnova/internal/delivery"
	"github.com/vetnova/vetnova/internal/platform/cache"
	"github.com/vetnova/vetnova/internal/platform/db"
	"github.com/vetnova/vetnova/internal/shared"
	"github.com/vetnova/vetnova/jobs"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, reports uncached", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	deliveryRepo := delivery.NewRepository(pool)
	notifier := delivery.NewStatusNotifier(deliveryRepo, deliveryRepo, logger)
	deliveryService := delivery.NewService(deliveryRepo).WithNotifier(notifier)
	deliveryHandler := delivery.NewHandler(logger, deliveryService)

	ledgerCache := accounting.NewCache(redisClient, cfg.ReportCacheTTL)
	accountingRepo := accounting.NewRepository(pool)
	auditLogger := shared.NewAuditLogger(pool)
	accountingService := accounting.NewService(accountingRepo, auditLogger, ledgerCache)
	reporter := accounting.NewReporter(accountingRepo, ledgerCache)
	accountingHandler := accounting.NewHandler(logger, accountingService, reporter)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		DeliveryHandler:   deliveryHandler,
		AccountingHandler: accountingHandler,
		JobHandler:        jobHandler,
		Pool:              pool,
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
