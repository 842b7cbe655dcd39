package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Catalog provides consistent snapshots of the role definition catalog.
// One resolve call reads exactly one snapshot, even if the catalog is
// edited concurrently.
type Catalog interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Snapshot is an immutable view of the active role definitions.
type Snapshot struct {
	byName  map[string]RoleDefinition
	ordered []RoleDefinition
}

// Get returns the definition for a role name.
func (s Snapshot) Get(roleName string) (RoleDefinition, bool) {
	def, ok := s.byName[roleName]
	return def, ok
}

// ListActive returns the active definitions ordered by hierarchy level
// descending, then by role name.
func (s Snapshot) ListActive() []RoleDefinition {
	out := make([]RoleDefinition, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Len returns the number of definitions in the snapshot.
func (s Snapshot) Len() int {
	return len(s.ordered)
}

// roleRecord is the storage and cache wire form of a role definition,
// with rules still in their stored string encoding.
type roleRecord struct {
	ID                 string    `json:"id"`
	RoleName           string    `json:"role_name"`
	DisplayName        string    `json:"display_name"`
	Description        string    `json:"description"`
	HierarchyLevel     int       `json:"role_hierarchy_level"`
	DefaultPermissions []string  `json:"default_permissions"`
	AssignableRoles    []string  `json:"can_assign_roles"`
	MaxScope           string    `json:"max_scope"`
	IsSystemRole       bool      `json:"is_system_role"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// buildSnapshot parses stored rule strings once and assembles the
// immutable snapshot. Malformed rules are skipped with a warning so a
// bad catalog row degrades that rule, not the whole catalog.
func buildSnapshot(records []roleRecord, logger *slog.Logger) Snapshot {
	byName := make(map[string]RoleDefinition, len(records))
	ordered := make([]RoleDefinition, 0, len(records))
	for _, rec := range records {
		rules := make([]Rule, 0, len(rec.DefaultPermissions))
		for _, raw := range rec.DefaultPermissions {
			rule, err := ParseRule(raw)
			if err != nil {
				if logger != nil {
					logger.Warn("skip malformed permission rule",
						slog.String("role", rec.RoleName),
						slog.Any("error", err))
				}
				continue
			}
			rules = append(rules, rule)
		}
		maxScope := Scope(rec.MaxScope)
		if !maxScope.Valid() {
			if rec.MaxScope != "" && logger != nil {
				logger.Warn("unknown max scope, defaulting to global",
					slog.String("role", rec.RoleName),
					slog.String("max_scope", rec.MaxScope))
			}
			maxScope = ScopeGlobal
		}
		def := RoleDefinition{
			ID:              rec.ID,
			RoleName:        rec.RoleName,
			DisplayName:     rec.DisplayName,
			Description:     rec.Description,
			HierarchyLevel:  rec.HierarchyLevel,
			DefaultRules:    rules,
			AssignableRoles: append([]string(nil), rec.AssignableRoles...),
			MaxScope:        maxScope,
			IsSystemRole:    rec.IsSystemRole,
			IsActive:        rec.IsActive,
			CreatedAt:       rec.CreatedAt,
			UpdatedAt:       rec.UpdatedAt,
		}
		byName[def.RoleName] = def
		ordered = append(ordered, def)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].HierarchyLevel != ordered[j].HierarchyLevel {
			return ordered[i].HierarchyLevel > ordered[j].HierarchyLevel
		}
		return ordered[i].RoleName < ordered[j].RoleName
	})
	return Snapshot{byName: byName, ordered: ordered}
}

// SnapshotOf builds a snapshot directly from definitions. Intended for
// tests and seeding.
func SnapshotOf(defs ...RoleDefinition) Snapshot {
	byName := make(map[string]RoleDefinition, len(defs))
	ordered := make([]RoleDefinition, 0, len(defs))
	for _, def := range defs {
		byName[def.RoleName] = def
		ordered = append(ordered, def)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].HierarchyLevel != ordered[j].HierarchyLevel {
			return ordered[i].HierarchyLevel > ordered[j].HierarchyLevel
		}
		return ordered[i].RoleName < ordered[j].RoleName
	})
	return Snapshot{byName: byName, ordered: ordered}
}

// PGCatalog reads role definitions from PostgreSQL.
type PGCatalog struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPGCatalog constructs a PostgreSQL backed catalog.
func NewPGCatalog(pool *pgxpool.Pool, logger *slog.Logger) *PGCatalog {
	return &PGCatalog{pool: pool, logger: logger}
}

// Snapshot loads the active definitions.
func (c *PGCatalog) Snapshot(ctx context.Context) (Snapshot, error) {
	records, err := c.fetch(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return buildSnapshot(records, c.logger), nil
}

func (c *PGCatalog) fetch(ctx context.Context) ([]roleRecord, error) {
	const query = `
		SELECT id, role_name, display_name, description,
		       role_hierarchy_level, default_permissions, can_assign_roles,
		       max_scope, is_system_role, is_active, created_at, updated_at
		FROM role_definitions
		WHERE is_active = TRUE
		ORDER BY role_hierarchy_level DESC, role_name`
	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("authz: list role definitions: %w", err)
	}
	defer rows.Close()

	var records []roleRecord
	for rows.Next() {
		var rec roleRecord
		if err := rows.Scan(
			&rec.ID, &rec.RoleName, &rec.DisplayName, &rec.Description,
			&rec.HierarchyLevel, &rec.DefaultPermissions, &rec.AssignableRoles,
			&rec.MaxScope, &rec.IsSystemRole, &rec.IsActive,
			&rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("authz: scan role definition: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("authz: list role definitions: %w", err)
	}
	return records, nil
}

const catalogCacheKey = "authz:catalog"

// CachedCatalog fronts a PGCatalog with a short-lived Redis cache.
// Concurrent cache misses are collapsed into one database load.
type CachedCatalog struct {
	source *PGCatalog
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCachedCatalog constructs a caching catalog.
func NewCachedCatalog(source *PGCatalog, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedCatalog {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedCatalog{source: source, client: client, ttl: ttl, logger: logger}
}

// Snapshot returns the cached catalog, loading from PostgreSQL on miss.
func (c *CachedCatalog) Snapshot(ctx context.Context) (Snapshot, error) {
	data, err := c.client.Get(ctx, catalogCacheKey).Bytes()
	if err == nil {
		var records []roleRecord
		if err := json.Unmarshal(data, &records); err == nil {
			return buildSnapshot(records, c.logger), nil
		}
		if c.logger != nil {
			c.logger.Warn("discard unreadable catalog cache entry")
		}
	} else if !errors.Is(err, redis.Nil) && c.logger != nil {
		c.logger.Warn("catalog cache read", slog.Any("error", err))
	}

	value, err, _ := c.group.Do(catalogCacheKey, func() (any, error) {
		records, err := c.source.fetch(ctx)
		if err != nil {
			return nil, err
		}
		if payload, err := json.Marshal(records); err == nil {
			if err := c.client.Set(ctx, catalogCacheKey, payload, c.ttl).Err(); err != nil && c.logger != nil {
				c.logger.Warn("catalog cache write", slog.Any("error", err))
			}
		}
		return records, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return buildSnapshot(value.([]roleRecord), c.logger), nil
}

// Invalidate drops the cached catalog so the next snapshot reloads.
func (c *CachedCatalog) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, catalogCacheKey).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("authz: invalidate catalog cache: %w", err)
	}
	return nil
}
