package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Recorder writes activity records into profile_activities.
type Recorder struct {
	pool *pgxpool.Pool
}

// NewRecorder returns a new Recorder.
func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

// Record persists the entry. Callers treat failures as warnings, never
// as reasons to roll a mutation back.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if r == nil {
		return errors.New("activity recorder not initialised")
	}
	if entry.PrincipalID == "" || entry.ActivityType == "" {
		return errors.New("activity entry requires principal and type")
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("activity: encode metadata: %w", err)
	}
	occurredAt := entry.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	const query = `
		INSERT INTO profile_activities
			(id, profile_id, activity_type, target_type, target_id,
			 description, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.pool.Exec(ctx, query,
		uuid.NewString(), entry.PrincipalID, entry.ActivityType,
		entry.TargetType, entry.TargetID, entry.Description,
		metadata, occurredAt,
	)
	if err != nil {
		return fmt.Errorf("activity: record: %w", err)
	}
	return nil
}
