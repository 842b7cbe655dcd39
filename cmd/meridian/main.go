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

	"github.com/meridian-admin/meridian-admin/internal/activity"
	activityhttp "github.com/meridian-admin/meridian-admin/internal/activity/http"
	"github.com/meridian-admin/meridian-admin/internal/app"
	"github.com/meridian-admin/meridian-admin/internal/auth"
	"github.com/meridian-admin/meridian-admin/internal/authz"
	"github.com/meridian-admin/meridian-admin/internal/observability"
	"github.com/meridian-admin/meridian-admin/internal/platform/cache"
	"github.com/meridian-admin/meridian-admin/internal/platform/db"
	"github.com/meridian-admin/meridian-admin/internal/profiles"
	"github.com/meridian-admin/meridian-admin/internal/shared"
	"github.com/meridian-admin/meridian-admin/jobs"
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

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
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

	sessionManager := shared.NewSessionManager(redisClient, "meridian_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	var csrfManager *shared.CSRFManager
	if cfg.CSRFSecret != "" {
		csrfManager = shared.NewCSRFManager(cfg.CSRFSecret)
	}

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	metrics := observability.NewMetrics()

	catalog := authz.NewCachedCatalog(authz.NewPGCatalog(dbpool, logger), redisClient, cfg.RoleCatalogTTL, logger)
	assignmentStore := authz.NewPGAssignmentStore(dbpool)
	grantStore := authz.NewPGGrantStore(dbpool)
	recorder := activity.NewRecorder(dbpool)
	lifecycle := authz.NewLifecycle(catalog, assignmentStore, grantStore, recorder, logger)
	authzService := authz.NewService(catalog, assignmentStore, grantStore, lifecycle, metrics)
	guard := authz.Middleware{Service: authzService, Logger: logger}
	authzHandler := authz.NewHandler(logger, authzService, guard)

	profileRepo := profiles.NewRepository(dbpool)
	profileService := profiles.NewService(profileRepo)
	profileHandler := profiles.NewHandler(logger, profileService, guard)

	activityRepo := activity.NewPGRepository(dbpool)
	activityService := activity.NewService(activityRepo)
	activityHandler := activityhttp.NewHandler(logger, activityService, profileService, guard)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, jobsClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		AuthHandler:     authHandler,
		AuthzHandler:    authzHandler,
		ProfilesHandler: profileHandler,
		ActivityHandler: activityHandler,
		JobsHandler:     jobsHandler,
		Guard:           guard,
		Metrics:         metrics,
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
