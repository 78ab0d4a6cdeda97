package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-crm/odyssey-crm/cmd/odyssey/cli"
	"github.com/odyssey-crm/odyssey-crm/internal/app"
	"github.com/odyssey-crm/odyssey-crm/internal/members"
	"github.com/odyssey-crm/odyssey-crm/internal/observability"
	"github.com/odyssey-crm/odyssey-crm/internal/permissions"
	"github.com/odyssey-crm/odyssey-crm/internal/permissions/catalog"
	"github.com/odyssey-crm/odyssey-crm/internal/platform/cache"
	"github.com/odyssey-crm/odyssey-crm/internal/platform/db"
	"github.com/odyssey-crm/odyssey-crm/internal/rbac"
	"github.com/odyssey-crm/odyssey-crm/internal/roles"
	"github.com/odyssey-crm/odyssey-crm/internal/shared"
	"github.com/odyssey-crm/odyssey-crm/internal/tenant"
	"github.com/odyssey-crm/odyssey-crm/jobs"
)

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

	if len(os.Args) > 1 {
		os.Exit(cli.Run(ctx, os.Args[1:], cli.Env{
			Redis:  asynq.RedisClientOpt{Addr: cfg.RedisAddr},
			Stdout: os.Stdout,
			Stderr: os.Stderr,
		}))
	}

	logger := app.NewLogger(cfg, "odyssey-api")

	dbpool, err := db.New(ctx, db.PoolConfig{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns, AppName: "odyssey-api"})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDialTimeout)
	if err != nil {
		if !errors.Is(err, cache.ErrUnreachable) {
			logger.Error("connect redis", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Warn("redis unreachable, permission caches will miss", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "odyssey_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	baseCatalog, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error("load permission catalog", slog.String("path", cfg.CatalogPath), slog.Any("error", err))
		os.Exit(1)
	}

	versions := cache.NewVersioned(redisClient, "permissions", cfg.PermissionCacheTTL)
	catalogs := tenant.NewService(tenant.NewRepository(dbpool), baseCatalog, versions, logger)

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

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

	rbacService := rbac.NewService(rbac.ServiceConfig{
		Repo:      rbac.NewRepository(dbpool),
		Catalogs:  catalogs,
		Versions:  versions,
		Audit:     auditLogger,
		Observer:  metrics,
		Refresher: jobClient,
		Logger:    logger,
	})
	resolver := permissions.NewResolver(permissions.DefaultOff())

	rolesService := roles.NewService(roles.ServiceConfig{
		Repo:     roles.NewRepository(dbpool),
		Catalogs: catalogs,
		Shields:  rbacService,
		Grants:   rbacService,
		Audit:    auditLogger,
		Observer: metrics,
		Resolver: resolver,
		Logger:   logger,
	})
	membersService := members.NewService(members.ServiceConfig{
		Repo:     members.NewRepository(dbpool),
		Catalogs: catalogs,
		Shields:  rbacService,
		Grants:   rbacService,
		Audit:    auditLogger,
		Observer: metrics,
		Resolver: resolver,
		Editor:   permissions.EditorConfig{KeepOnFailure: cfg.KeepOnSaveFailure},
		Logger:   logger,
	})

	rbacMiddleware := rbac.Middleware{
		Service: rbacService,
		Grants:  membersService,
		Cache:   rbac.NewGrantCache(cfg.EffectiveCacheSize, cfg.PermissionCacheTTL),
		Logger:  logger,
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		RBACMiddleware:     rbacMiddleware,
		PermissionsHandler: rbac.NewHandler(logger, rbacService, catalogs, jobClient, rbacMiddleware),
		RolesHandler:       roles.NewHandler(logger, rolesService, rbacMiddleware),
		MembersHandler:     members.NewHandler(logger, membersService, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("catalog_version", baseCatalog.Version))
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
