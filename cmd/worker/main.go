package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/vetnova/vetnova/internal/accounting"
	"github.com/vetnova/vetnova/internal/app"
	"github.com/vetnova/vetnova/internal/delivery"
	"github.com/vetnova/vetnova/internal/platform/db"
	"github.com/vetnova/vetnova/internal/shared"
	"github.com/vetnova/vetnova/jobs"
)

func main() {
	_ = godotenv.Load()

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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	deliveryRepo := delivery.NewRepository(pool)
	notifier := delivery.NewStatusNotifier(deliveryRepo, deliveryRepo, logger)
	deliveryService := delivery.NewService(deliveryRepo).WithNotifier(notifier)
	assigner := delivery.NewAssigner(deliveryRepo, deliveryService, logger)

	accountingRepo := accounting.NewRepository(pool)
	auditLogger := shared.NewAuditLogger(pool)
	accountingService := accounting.NewService(accountingRepo, auditLogger, nil)

	autoAssignTask, err := jobs.NewAutoAssignTask(jobs.AutoAssignPayload{})
	if err != nil {
		logger.Error("build auto assign task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewLedgerIntegrityTask()
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAutoAssign, Handler: jobs.NewAutoAssignHandler(assigner, logger)},
			{Type: jobs.TaskLedgerIntegrity, Handler: jobs.NewLedgerIntegrityHandler(accountingService, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.AutoAssignSchedule, Task: autoAssignTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.LedgerIntegritySchedule, Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
