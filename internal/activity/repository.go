package activity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PostgreSQL timeline repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// TimelineWindow returns a page of activity records, newest first.
func (r *PGRepository) TimelineWindow(ctx context.Context, arg TimelineWindowParams) ([]TimelineRow, error) {
	const query = `
		SELECT id, profile_id, activity_type, target_type, target_id,
		       description, occurred_at
		FROM profile_activities
		WHERE ($1::text IS NULL OR profile_id = $1)
		  AND ($2::text IS NULL OR activity_type = $2)
		  AND ($3::timestamptz IS NULL OR occurred_at >= $3)
		  AND ($4::timestamptz IS NULL OR occurred_at <= $4)
		ORDER BY occurred_at DESC, id DESC
		OFFSET $5 LIMIT $6`
	rows, err := r.pool.Query(ctx, query,
		arg.PrincipalID, arg.ActivityType, arg.FromAt, arg.ToAt,
		arg.OffsetRows, arg.LimitRows,
	)
	if err != nil {
		return nil, fmt.Errorf("activity: timeline window: %w", err)
	}
	defer rows.Close()

	var result []TimelineRow
	for rows.Next() {
		var row TimelineRow
		if err := rows.Scan(
			&row.ID, &row.PrincipalID, &row.ActivityType, &row.TargetType,
			&row.TargetID, &row.Description, &row.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("activity: scan timeline row: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("activity: timeline window: %w", err)
	}
	return result, nil
}

var _ Repository = (*PGRepository)(nil)
