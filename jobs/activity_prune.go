package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/meridian-admin/meridian-admin/internal/jobs"
)

// ActivityPruneJob trims activity rows older than the retention window.
// Role and permission rows are never pruned; only the timeline shrinks.
type ActivityPruneJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewActivityPruneJob initialises the prune handler.
func NewActivityPruneJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *ActivityPruneJob {
	return &ActivityPruneJob{Pool: pool, Logger: logger, Metrics: metrics}
}

// Handle executes the prune.
func (j *ActivityPruneJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("activity prune: handler not configured")
	}
	var payload ActivityPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetainDays <= 0 {
		payload.RetainDays = 365
	}

	tracker := j.metrics().Track(TaskActivityPrune)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if j.Pool == nil {
		resultErr = errors.New("activity prune: pool not configured")
		return resultErr
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -payload.RetainDays)
	tag, err := j.Pool.Exec(ctx, `DELETE FROM profile_activities WHERE occurred_at < $1`, cutoff)
	if err != nil {
		resultErr = err
		j.logger().Error("prune failed", slog.Any("error", err))
		return resultErr
	}

	j.logger().Info("completed activity prune",
		slog.Int64("deleted", tag.RowsAffected()),
		slog.Time("cutoff", cutoff),
	)
	return resultErr
}

func (j *ActivityPruneJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskActivityPrune))
	}
	return slog.Default().With(slog.String("job", TaskActivityPrune))
}

func (j *ActivityPruneJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
