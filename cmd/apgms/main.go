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

	"github.com/apgms/apgms/internal/app"
	"github.com/apgms/apgms/internal/audit"
	"github.com/apgms/apgms/internal/auth"
	"github.com/apgms/apgms/internal/designated"
	"github.com/apgms/apgms/internal/idempotency"
	"github.com/apgms/apgms/internal/ledger"
	"github.com/apgms/apgms/internal/lodgment"
	"github.com/apgms/apgms/internal/obligation"
	"github.com/apgms/apgms/internal/observability"
	"github.com/apgms/apgms/internal/platform/cache"
	"github.com/apgms/apgms/internal/platform/db"
	"github.com/apgms/apgms/internal/reconcile"
	"github.com/apgms/apgms/internal/settlement"
	"github.com/apgms/apgms/internal/shared"
	"github.com/apgms/apgms/internal/tax"
	"github.com/apgms/apgms/internal/taxconfig"
	"github.com/apgms/apgms/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(logger, auditRepo)
	auditHandler := audit.NewHandler(logger, auditService)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService)

	designatedRepo := designated.NewRepository(dbpool)
	designatedService := designated.NewService(designatedRepo, auditService)
	designatedHandler := designated.NewHandler(logger, designatedService)

	ledgerRepo := ledger.NewRepository(dbpool)
	ledgerService := ledger.NewService(ledgerRepo, auditService)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	obligationRepo := obligation.NewRepository(dbpool)

	taxRepo := taxconfig.NewRepository(dbpool)
	paygwEngine := tax.NewPaygwEngine(taxRepo)
	gstEngine := tax.NewGstEngine(taxRepo)

	reconService := reconcile.NewService(designatedRepo, obligationRepo, ledgerRepo)
	reconHandler := reconcile.NewHandler(logger, reconService)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	settlementService := settlement.NewService(paygwEngine, gstEngine, designatedRepo, ledgerRepo, auditService, metrics)
	settlementHandler := settlement.NewHandler(logger, settlementService, jobClient)

	releaseLock := shared.NewReleaseLock(redisClient, cfg.LodgmentLockTTL)
	lodgmentService := lodgment.NewService(releaseLock, reconService, obligationRepo, ledgerRepo, auditService, metrics)
	lodgmentHandler := lodgment.NewHandler(logger, lodgmentService)

	idempotencyStore := idempotency.NewStore(idempotency.NewRepository(dbpool))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AuthService:       authService,
		AuthHandler:       authHandler,
		DesignatedHandler: designatedHandler,
		LedgerHandler:     ledgerHandler,
		SettlementHandler: settlementHandler,
		LodgmentHandler:   lodgmentHandler,
		ReconcileHandler:  reconHandler,
		AuditHandler:      auditHandler,
		JobHandler:        jobHandler,
		IdempotencyStore:  idempotencyStore,
		Metrics:           metrics,
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
