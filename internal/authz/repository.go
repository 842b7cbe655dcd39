package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AssignmentStore persists role assignments. ListActiveFor filters on the
// active flag only; expiry is evaluated by the resolver, because expired
// but formally active rows stay visible for audit and history display.
type AssignmentStore interface {
	ListActiveFor(ctx context.Context, principalID string) ([]RoleAssignment, error)
	Get(ctx context.Context, id string) (RoleAssignment, error)
	Insert(ctx context.Context, assignment RoleAssignment) error
	SoftRevoke(ctx context.Context, id, reason string) (bool, error)
}

// GrantStore persists direct permission grants with the same
// soft-revocation semantics as assignments.
type GrantStore interface {
	ListActiveFor(ctx context.Context, principalID string) ([]PermissionGrant, error)
	Get(ctx context.Context, id string) (PermissionGrant, error)
	Insert(ctx context.Context, grant PermissionGrant) error
	SoftRevoke(ctx context.Context, id, reason string) (bool, error)
}

// PGAssignmentStore implements AssignmentStore on PostgreSQL.
type PGAssignmentStore struct {
	pool *pgxpool.Pool
}

// NewPGAssignmentStore constructs a PostgreSQL assignment store.
func NewPGAssignmentStore(pool *pgxpool.Pool) *PGAssignmentStore {
	return &PGAssignmentStore{pool: pool}
}

// ListActiveFor returns the principal's assignments with is_active true.
func (s *PGAssignmentStore) ListActiveFor(ctx context.Context, principalID string) ([]RoleAssignment, error) {
	const query = `
		SELECT id, profile_id, role_name, scope, scope_id,
		       granted_by, granted_at, expires_at, is_active, notes
		FROM profile_roles
		WHERE profile_id = $1 AND is_active = TRUE
		ORDER BY granted_at, id`
	rows, err := s.pool.Query(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("authz: list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []RoleAssignment
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, assignment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("authz: list assignments: %w", err)
	}
	return assignments, nil
}

// Get fetches one assignment by ID regardless of its active flag.
func (s *PGAssignmentStore) Get(ctx context.Context, id string) (RoleAssignment, error) {
	const query = `
		SELECT id, profile_id, role_name, scope, scope_id,
		       granted_by, granted_at, expires_at, is_active, notes
		FROM profile_roles
		WHERE id = $1`
	assignment, err := scanAssignment(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleAssignment{}, ErrNotFound
		}
		return RoleAssignment{}, err
	}
	return assignment, nil
}

// Insert stores a new assignment row.
func (s *PGAssignmentStore) Insert(ctx context.Context, a RoleAssignment) error {
	const query = `
		INSERT INTO profile_roles
			(id, profile_id, role_name, scope, scope_id,
			 granted_by, granted_at, expires_at, is_active, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.pool.Exec(ctx, query,
		a.ID, a.PrincipalID, a.RoleName, string(a.Scope), optionalText(a.ScopeID),
		optionalText(a.GrantedBy), a.GrantedAt.UTC(), optionalTime(a.ExpiresAt),
		a.IsActive, optionalText(a.Notes),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("authz: insert assignment: %w", ErrDuplicateAssignment)
		}
		return fmt.Errorf("authz: insert assignment: %w", err)
	}
	return nil
}

// SoftRevoke flips is_active and records the reason. It reports whether
// a row actually transitioned, so callers can treat repeat revokes as
// no-op successes. Rows are never deleted.
func (s *PGAssignmentStore) SoftRevoke(ctx context.Context, id, reason string) (bool, error) {
	const query = `
		UPDATE profile_roles
		SET is_active = FALSE, revoked_at = NOW(), revocation_reason = $2
		WHERE id = $1 AND is_active = TRUE`
	tag, err := s.pool.Exec(ctx, query, id, optionalText(reason))
	if err != nil {
		return false, fmt.Errorf("authz: revoke assignment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// PGGrantStore implements GrantStore on PostgreSQL.
type PGGrantStore struct {
	pool *pgxpool.Pool
}

// NewPGGrantStore constructs a PostgreSQL grant store.
func NewPGGrantStore(pool *pgxpool.Pool) *PGGrantStore {
	return &PGGrantStore{pool: pool}
}

// ListActiveFor returns the principal's grants with is_active true.
func (s *PGGrantStore) ListActiveFor(ctx context.Context, principalID string) ([]PermissionGrant, error) {
	const query = `
		SELECT id, profile_id, permission_name, resource_type, resource_id,
		       action, granted_by, granted_at, expires_at, conditions, is_active
		FROM profile_permissions
		WHERE profile_id = $1 AND is_active = TRUE
		ORDER BY granted_at, id`
	rows, err := s.pool.Query(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("authz: list grants: %w", err)
	}
	defer rows.Close()

	var grants []PermissionGrant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("authz: list grants: %w", err)
	}
	return grants, nil
}

// Get fetches one grant by ID regardless of its active flag.
func (s *PGGrantStore) Get(ctx context.Context, id string) (PermissionGrant, error) {
	const query = `
		SELECT id, profile_id, permission_name, resource_type, resource_id,
		       action, granted_by, granted_at, expires_at, conditions, is_active
		FROM profile_permissions
		WHERE id = $1`
	grant, err := scanGrant(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PermissionGrant{}, ErrNotFound
		}
		return PermissionGrant{}, err
	}
	return grant, nil
}

// Insert stores a new grant row.
func (s *PGGrantStore) Insert(ctx context.Context, g PermissionGrant) error {
	const query = `
		INSERT INTO profile_permissions
			(id, profile_id, permission_name, resource_type, resource_id,
			 action, granted_by, granted_at, expires_at, conditions, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	conditions := g.Conditions
	if conditions == nil {
		conditions = map[string]any{}
	}
	_, err := s.pool.Exec(ctx, query,
		g.ID, g.PrincipalID, g.PermissionName, string(g.ResourceType),
		optionalText(g.ResourceID), string(g.Action), optionalText(g.GrantedBy),
		g.GrantedAt.UTC(), optionalTime(g.ExpiresAt), conditions, g.IsActive,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("authz: insert grant: %w", ErrDuplicateAssignment)
		}
		return fmt.Errorf("authz: insert grant: %w", err)
	}
	return nil
}

// SoftRevoke deactivates a grant, reporting whether a row transitioned.
func (s *PGGrantStore) SoftRevoke(ctx context.Context, id, reason string) (bool, error) {
	const query = `
		UPDATE profile_permissions
		SET is_active = FALSE, revoked_at = NOW(), revocation_reason = $2
		WHERE id = $1 AND is_active = TRUE`
	tag, err := s.pool.Exec(ctx, query, id, optionalText(reason))
	if err != nil {
		return false, fmt.Errorf("authz: revoke grant: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (RoleAssignment, error) {
	var (
		a         RoleAssignment
		scope     string
		scopeID   pgtype.Text
		grantedBy pgtype.Text
		expiresAt pgtype.Timestamptz
		notes     pgtype.Text
	)
	if err := row.Scan(
		&a.ID, &a.PrincipalID, &a.RoleName, &scope, &scopeID,
		&grantedBy, &a.GrantedAt, &expiresAt, &a.IsActive, &notes,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleAssignment{}, err
		}
		return RoleAssignment{}, fmt.Errorf("authz: scan assignment: %w", err)
	}
	a.Scope = Scope(scope)
	a.ScopeID = scopeID.String
	a.GrantedBy = grantedBy.String
	a.Notes = notes.String
	if expiresAt.Valid {
		t := expiresAt.Time
		a.ExpiresAt = &t
	}
	return a, nil
}

func scanGrant(row rowScanner) (PermissionGrant, error) {
	var (
		g          PermissionGrant
		resource   string
		resourceID pgtype.Text
		action     string
		grantedBy  pgtype.Text
		expiresAt  pgtype.Timestamptz
		conditions map[string]any
	)
	if err := row.Scan(
		&g.ID, &g.PrincipalID, &g.PermissionName, &resource, &resourceID,
		&action, &grantedBy, &g.GrantedAt, &expiresAt, &conditions, &g.IsActive,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PermissionGrant{}, err
		}
		return PermissionGrant{}, fmt.Errorf("authz: scan grant: %w", err)
	}
	g.ResourceType = ResourceType(resource)
	g.ResourceID = resourceID.String
	g.Action = Action(action)
	g.GrantedBy = grantedBy.String
	g.Conditions = conditions
	if expiresAt.Valid {
		t := expiresAt.Time
		g.ExpiresAt = &t
	}
	return g, nil
}

func optionalText(value string) pgtype.Text {
	if value == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: value, Valid: true}
}

func optionalTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}
