package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-admin/meridian-admin/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Credential, error)
	CreateSession(ctx context.Context, id, profileID string, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches the credential row for an email address.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Credential, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, full_name, password_hash, is_active, created_at, updated_at
		FROM profiles
		WHERE LOWER(email) = LOWER($1)`, email)

	var cred Credential
	err := row.Scan(&cred.ProfileID, &cred.Email, &cred.FullName, &cred.PasswordHash,
		&cred.IsActive, &cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return &cred, nil
}

// CreateSession persists a login session row for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id, profileID string, expiresAt time.Time, ip, ua string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO auth_sessions (id, profile_id, created_at, expires_at, ip, ua)
		VALUES ($1, $2, NOW(), $3, $4, $5)`,
		id, profileID,
		pgtype.Timestamptz{Time: expiresAt.UTC(), Valid: true},
		pgtype.Text{String: ip, Valid: ip != ""},
		pgtype.Text{String: ua, Valid: ua != ""})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// DeleteSession removes a session record.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
