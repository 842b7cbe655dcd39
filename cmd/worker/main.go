package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridian-admin/meridian-admin/internal/app"
	"github.com/meridian-admin/meridian-admin/internal/platform/cache"
	"github.com/meridian-admin/meridian-admin/internal/platform/db"
	"github.com/meridian-admin/meridian-admin/jobs"
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

	// Fail fast when the queue backend is unreachable; asynq manages
	// its own connections from RedisOpts.
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

	expiryJob := jobs.NewExpiryScanJob(pool, logger, nil)
	pruneJob := jobs.NewActivityPruneJob(pool, logger, nil)

	expiryTask, err := jobs.NewExpiryScanTask(jobs.ExpiryScanPayload{WindowDays: 7})
	if err != nil {
		logger.Error("build expiry scan task", slog.Any("error", err))
		os.Exit(1)
	}
	pruneTask, err := jobs.NewActivityPruneTask(jobs.ActivityPrunePayload{RetainDays: 365})
	if err != nil {
		logger.Error("build activity prune task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuthzExpiryScan, Handler: expiryJob.Handle},
			{Type: jobs.TaskActivityPrune, Handler: pruneJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "@every " + cfg.ExpiryScanInterval.String(), Task: expiryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 2 * * 0", Task: pruneTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
