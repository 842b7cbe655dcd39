package profiles

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-admin/meridian-admin/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const profileColumns = `id, email, full_name, account_type, is_active, created_at, updated_at`

// Search returns profiles matching the filters, newest first.
func (r *Repository) Search(ctx context.Context, filters SearchFilters, offset, limit int32) ([]Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM profiles
		WHERE ($1::text IS NULL OR email ILIKE '%' || $1 || '%' OR full_name ILIKE '%' || $1 || '%')
		  AND ($2::text IS NULL OR account_type = $2)
		  AND (NOT $3::boolean OR is_active)
		ORDER BY created_at DESC, id DESC
		OFFSET $4 LIMIT $5`

	rows, err := r.pool.Query(ctx, query,
		nullableText(filters.Query),
		nullableText(filters.AccountType),
		filters.ActiveOnly,
		offset, limit)
	if err != nil {
		return nil, fmt.Errorf("search profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return profiles, nil
}

// Get fetches one profile by ID.
func (r *Repository) Get(ctx context.Context, id string) (Profile, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, fmt.Errorf("profile %s: %w", id, httpx.ErrNotFound)
		}
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// Create inserts a new profile. A duplicate email maps to
// httpx.ErrDuplicate via the unique constraint.
func (r *Repository) Create(ctx context.Context, p Profile) (Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO profiles (id, email, full_name, account_type, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING `+profileColumns,
		p.ID, p.Email, p.FullName, p.AccountType)
	created, err := scanProfile(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Profile{}, fmt.Errorf("email %s already registered: %w", p.Email, httpx.ErrDuplicate)
		}
		return Profile{}, fmt.Errorf("create profile: %w", err)
	}
	return created, nil
}

// SetActive toggles the active flag. Deactivated profiles keep all role
// and permission rows; access checks fail because the profile is gone
// from the active principal set.
func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE profiles SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set profile active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("profile %s: %w", id, httpx.ErrNotFound)
	}
	return nil
}

// DisplayNames resolves full names for the given profile IDs.
func (r *Repository) DisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, full_name FROM profiles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("display names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string, len(ids))
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (Profile, error) {
	var p Profile
	if err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.AccountType, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
