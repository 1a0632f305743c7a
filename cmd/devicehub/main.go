package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/devicehub/devicehub/cmd/devicehub/cli"
	"github.com/devicehub/devicehub/internal/app"
	"github.com/devicehub/devicehub/internal/catalog"
	"github.com/devicehub/devicehub/internal/commission"
	"github.com/devicehub/devicehub/internal/customers"
	"github.com/devicehub/devicehub/internal/dashboard"
	"github.com/devicehub/devicehub/internal/inventory"
	"github.com/devicehub/devicehub/internal/invoices"
	"github.com/devicehub/devicehub/internal/observability"
	"github.com/devicehub/devicehub/internal/payouts"
	"github.com/devicehub/devicehub/internal/platform/cache"
	"github.com/devicehub/devicehub/internal/platform/db"
	"github.com/devicehub/devicehub/internal/profit"
	"github.com/devicehub/devicehub/internal/repairs"
	"github.com/devicehub/devicehub/internal/sales"
	"github.com/devicehub/devicehub/internal/shared"
	"github.com/devicehub/devicehub/jobs"
)

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobs(ctx, cfg, os.Args[2:]))
	}

	logger := app.NewLogger(cfg)
	if err := serve(ctx, stop, cfg, logger); err != nil {
		logger.Error("devicehub", slog.Any("error", err))
		os.Exit(1)
	}
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "print JSON output")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	jobsCLI, err := cli.NewJobsCLI(redisOpt(cfg))
	if err != nil {
		slog.Default().Error("jobs cli", slog.Any("error", err))
		return 1
	}
	defer jobsCLI.Close()
	return jobsCLI.Command(ctx, cli.JobsOptions{Action: fs.Arg(0), JSONOutput: *jsonOut})
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	commissionFallback, err := cfg.Commission()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	cacheMetrics, err := profit.NewCacheMetrics(metrics.Registerer())
	if err != nil {
		return err
	}
	money, err := sales.NewMoney(cfg.Locale, cfg.Currency)
	if err != nil {
		return err
	}

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	dashboardService := dashboard.NewService(dashboard.NewRepository(dbpool), dashboard.NewCache(redisClient, cfg.CacheTTL), loc)

	catalogService := catalog.NewService(catalog.NewRepository(dbpool), auditLogger)
	inventoryService := inventory.NewService(inventory.Deps{
		Repo:      inventory.NewRepository(dbpool),
		Audit:     auditLogger,
		Catalog:   catalogService,
		Summaries: dashboardService,
	})
	customerService := customers.NewService(customers.NewRepository(dbpool), auditLogger)
	commissionService := commission.NewService(commission.NewPGStore(dbpool), auditLogger, commissionFallback)
	repairService := repairs.NewService(repairs.NewRepository(dbpool), auditLogger, dashboardService)
	salesService := sales.NewService(sales.Deps{
		Repo:      sales.NewRepository(dbpool),
		Customers: customerService,
		Rates:     commissionService,
		Audit:     auditLogger,
		Profits:   profit.NewCache(redisClient, cfg.CacheTTL, cacheMetrics),
		Money:     money,
		Summaries: dashboardService,
	})
	invoiceService := invoices.NewService(invoices.NewRepository(dbpool), auditLogger, money, loc)
	payoutService := payouts.NewService(payouts.NewRepository(dbpool), idempotencyStore, auditLogger, payouts.Options{
		PaidRetention: cfg.PaidRetention,
		LedgerWindow:  cfg.LedgerWindow,
		Location:      loc,
	})

	inspector := asynq.NewInspector(redisOpt(cfg))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:  logger,
		Config:  cfg,
		Metrics: metrics,
		Checks: map[string]app.Pinger{
			"postgres": dbpool,
			"redis":    redisPinger{client: redisClient},
		},
		InventoryHandler:  inventory.NewHandler(logger, inventoryService),
		CatalogHandler:    catalog.NewHandler(logger, catalogService),
		InvoicesHandler:   invoices.NewHandler(logger, invoiceService),
		CustomersHandler:  customers.NewHandler(logger, customerService),
		CommissionHandler: commission.NewHandler(logger, commissionService),
		RepairsHandler:    repairs.NewHandler(logger, repairService),
		SalesHandler:      sales.NewHandler(logger, salesService),
		PayoutsHandler:    payouts.NewHandler(logger, payoutService),
		DashboardHandler:  dashboard.NewHandler(logger, dashboardService),
		JobHandler:        jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func redisOpt(cfg *app.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}
