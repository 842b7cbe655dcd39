package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-admin/meridian-admin/internal/activity"
	jobmetrics "github.com/meridian-admin/meridian-admin/internal/jobs"
	"github.com/meridian-admin/meridian-admin/internal/platform/db"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ExpiryScanJob flags role assignments that will expire within the
// notice window. The scan never mutates assignments: expiry itself is
// computed at read time, this job only emits timeline notices so
// administrators can renew access before it lapses.
type ExpiryScanJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewExpiryScanJob initialises the expiry scan handler.
func NewExpiryScanJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExpiryScanJob {
	return &ExpiryScanJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type expiringAssignment struct {
	ID          string
	PrincipalID string
	RoleName    string
	ExpiresAt   time.Time
}

// Handle executes the expiry scan logic.
func (j *ExpiryScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("expiry scan: handler not configured")
	}
	var payload ExpiryScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.WindowDays <= 0 {
		payload.WindowDays = 7
	}

	start := j.now()
	tracker := j.metrics().Track(TaskAuthzExpiryScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("window_days", payload.WindowDays))
	logger.Info("starting expiry scan")

	flagged, err := j.scan(ctx, payload.WindowDays, start)
	if err != nil {
		resultErr = err
		logger.Error("scan failed", slog.Any("error", err))
		return resultErr
	}

	for _, a := range flagged {
		logger.Warn("role assignment expiring soon",
			slog.String("assignment_id", a.ID),
			slog.String("principal_id", a.PrincipalID),
			slog.String("role", a.RoleName),
			slog.Time("expires_at", a.ExpiresAt),
		)
		j.metrics().AddExpiringAssignments(a.RoleName, 1)
	}

	logger.Info("completed expiry scan",
		slog.Int("flagged", len(flagged)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

// scan finds soon-to-expire assignments that have not been flagged yet
// and writes one timeline notice each. The read and the inserts share a
// transaction so a concurrent scan cannot double-notify.
func (j *ExpiryScanJob) scan(ctx context.Context, windowDays int, now time.Time) ([]expiringAssignment, error) {
	if j.Pool == nil {
		return nil, errors.New("expiry scan: pool not configured")
	}
	deadline := now.AddDate(0, 0, windowDays)

	var flagged []expiringAssignment
	err := db.WithTx(ctx, j.Pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT pr.id, pr.profile_id, pr.role_name, pr.expires_at
			FROM profile_roles pr
			WHERE pr.is_active
			  AND pr.expires_at IS NOT NULL
			  AND pr.expires_at > $1
			  AND pr.expires_at <= $2
			  AND NOT EXISTS (
				SELECT 1 FROM profile_activities pa
				WHERE pa.activity_type = $3
				  AND pa.target_type = 'role_assignment'
				  AND pa.target_id = pr.id
			  )
			ORDER BY pr.expires_at`,
			now, deadline, activity.TypeRoleExpiringSoon)
		if err != nil {
			return err
		}
		defer rows.Close()

		flagged = flagged[:0]
		for rows.Next() {
			var a expiringAssignment
			if err := rows.Scan(&a.ID, &a.PrincipalID, &a.RoleName, &a.ExpiresAt); err != nil {
				return err
			}
			flagged = append(flagged, a)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, a := range flagged {
			metadata, err := json.Marshal(map[string]any{
				"role_name":  a.RoleName,
				"expires_at": a.ExpiresAt.Format(time.RFC3339),
			})
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO profile_activities
					(id, profile_id, activity_type, target_type, target_id, description, metadata, occurred_at)
				VALUES ($1, $2, $3, 'role_assignment', $4, $5, $6, NOW())`,
				uuid.NewString(), a.PrincipalID, activity.TypeRoleExpiringSoon, a.ID,
				fmt.Sprintf("Role %s expires at %s", a.RoleName, a.ExpiresAt.Format(time.RFC3339)),
				metadata)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return flagged, nil
}

func (j *ExpiryScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAuthzExpiryScan))
	}
	return slog.Default().With(slog.String("job", TaskAuthzExpiryScan))
}

func (j *ExpiryScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ExpiryScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
