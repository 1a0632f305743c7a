package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/devicehub/devicehub/internal/app"
	"github.com/devicehub/devicehub/internal/dashboard"
	jobmetrics "github.com/devicehub/devicehub/internal/jobs"
	"github.com/devicehub/devicehub/internal/payouts"
	"github.com/devicehub/devicehub/internal/platform/cache"
	"github.com/devicehub/devicehub/internal/platform/db"
	"github.com/devicehub/devicehub/internal/shared"
	"github.com/devicehub/devicehub/jobs"
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

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))
	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 4})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	payoutService := payouts.NewService(payouts.NewRepository(pool), idempotencyStore, auditLogger, payouts.Options{
		PaidRetention: cfg.PaidRetention,
		LedgerWindow:  cfg.LedgerWindow,
		Location:      loc,
	})
	dashboardService := dashboard.NewService(dashboard.NewRepository(pool), dashboard.NewCache(redisClient, cfg.CacheTTL), loc)

	metrics := jobmetrics.NewMetrics(nil)
	retention := jobs.NewRetentionJob(payoutService, idempotencyStore, logger, metrics)
	warmup := jobs.NewDashboardWarmupJob(dashboardService, logger, metrics)

	cron, err := cronRegistrations()
	if err != nil {
		return err
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpt(cfg),
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPurgePaid, Handler: retention.HandlePurgePaid},
			{Type: jobs.TaskPurgeLedger, Handler: retention.HandlePurgeLedger},
			{Type: jobs.TaskIdempotencyCleanup, Handler: retention.HandleIdempotencyCleanup},
			{Type: jobs.TaskDashboardWarmup, Handler: warmup.Handle},
		},
		Cron:        cron,
		Concurrency: cfg.WorkerConcurrency,
		Location:    loc,
	})
	if err != nil {
		return err
	}
	logger.Info("starting worker", slog.Int("cron_entries", len(cron)))
	return worker.Run(ctx)
}

func cronRegistrations() ([]jobs.CronRegistration, error) {
	purgePaid, err := jobs.NewPurgePaidTask(jobs.RetentionPayload{RequestedBy: "cron"})
	if err != nil {
		return nil, err
	}
	purgeLedger, err := jobs.NewPurgeLedgerTask(jobs.RetentionPayload{RequestedBy: "cron"})
	if err != nil {
		return nil, err
	}
	cleanup, err := jobs.NewIdempotencyCleanupTask(jobs.RetentionPayload{RequestedBy: "cron"})
	if err != nil {
		return nil, err
	}
	warmup, err := jobs.NewDashboardWarmupTask(jobs.DashboardWarmupPayload{RequestedBy: "cron"})
	if err != nil {
		return nil, err
	}
	retry := []asynq.Option{asynq.MaxRetry(3), asynq.Timeout(5 * time.Minute)}
	return []jobs.CronRegistration{
		{Spec: "10 0 * * *", Task: purgePaid, Options: retry},
		{Spec: "20 0 * * *", Task: purgeLedger, Options: retry},
		{Spec: "30 0 * * *", Task: cleanup, Options: retry},
		{Spec: "*/15 * * * *", Task: warmup, Options: []asynq.Option{asynq.MaxRetry(1), asynq.Unique(10 * time.Minute)}},
	}, nil
}

func redisOpt(cfg *app.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}
