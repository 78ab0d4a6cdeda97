package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-crm/odyssey-crm/internal/app"
	jobmetrics "github.com/odyssey-crm/odyssey-crm/internal/jobs"
	"github.com/odyssey-crm/odyssey-crm/internal/permissions/catalog"
	"github.com/odyssey-crm/odyssey-crm/internal/platform/cache"
	"github.com/odyssey-crm/odyssey-crm/internal/platform/db"
	"github.com/odyssey-crm/odyssey-crm/internal/rbac"
	"github.com/odyssey-crm/odyssey-crm/internal/tenant"
	"github.com/odyssey-crm/odyssey-crm/jobs"
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

	logger := app.NewLogger(cfg, "odyssey-worker")

	pool, err := db.New(ctx, db.PoolConfig{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns, AppName: "odyssey-worker"})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDialTimeout)
	if err != nil {
		if !errors.Is(err, cache.ErrUnreachable) {
			logger.Error("connect redis", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Warn("redis unreachable, catalog versions will miss", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	baseCatalog, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error("load permission catalog", slog.String("path", cfg.CatalogPath), slog.Any("error", err))
		os.Exit(1)
	}

	versions := cache.NewVersioned(redisClient, "permissions", cfg.PermissionCacheTTL)
	catalogs := tenant.NewService(tenant.NewRepository(pool), baseCatalog, versions, logger)
	grants := rbac.NewService(rbac.ServiceConfig{
		Repo:     rbac.NewRepository(pool),
		Catalogs: catalogs,
		Versions: versions,
		Logger:   logger,
	})
	companies := jobs.PoolCompanyLister{Pool: pool}
	metrics := jobmetrics.NewMetrics(nil)

	refreshJob := jobs.NewPermissionsRefreshJob(catalogs, grants, companies, logger, metrics)
	warmupJob := jobs.NewCatalogWarmupJob(catalogs, companies, logger, metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPermissionsRefresh, Handler: refreshJob.Handle},
			{Type: jobs.TaskCatalogWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.CatalogWarmupCron, Task: jobs.NewCatalogWarmupTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
