package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/apgms/apgms/internal/app"
	"github.com/apgms/apgms/internal/audit"
	"github.com/apgms/apgms/internal/designated"
	"github.com/apgms/apgms/internal/idempotency"
	jobmetrics "github.com/apgms/apgms/internal/jobs"
	"github.com/apgms/apgms/internal/ledger"
	"github.com/apgms/apgms/internal/obligation"
	"github.com/apgms/apgms/internal/platform/db"
	"github.com/apgms/apgms/internal/reconcile"
	"github.com/apgms/apgms/internal/settlement"
	"github.com/apgms/apgms/internal/tax"
	"github.com/apgms/apgms/internal/taxconfig"
	"github.com/apgms/apgms/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditService := audit.NewService(logger, audit.NewRepository(pool))
	designatedRepo := designated.NewRepository(pool)
	ledgerRepo := ledger.NewRepository(pool)
	obligationRepo := obligation.NewRepository(pool)

	taxRepo := taxconfig.NewRepository(pool)
	paygwEngine := tax.NewPaygwEngine(taxRepo)
	gstEngine := tax.NewGstEngine(taxRepo)

	settlementService := settlement.NewService(paygwEngine, gstEngine, designatedRepo, ledgerRepo, auditService, nil)
	reconService := reconcile.NewService(designatedRepo, obligationRepo, ledgerRepo)
	dedupe := idempotency.NewStore(idempotency.NewRepository(pool))

	metrics := jobmetrics.NewMetrics(nil)
	settlementJob := jobs.NewSettlementJob(settlementService, dedupe, logger, metrics)
	dueScanJob := jobs.NewBasDueScanJob(obligationRepo, reconService, auditService, logger, metrics)

	dueScanTask, err := jobs.NewBasDueScanTask(time.Now().UTC(), 14)
	if err != nil {
		logger.Error("build due scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPayrollSettlement, Handler: settlementJob.HandlePayroll},
			{Type: jobs.TaskPosSettlement, Handler: settlementJob.HandlePos},
			{Type: jobs.TaskBasDueScan, Handler: dueScanJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 6 * * *", Task: dueScanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
