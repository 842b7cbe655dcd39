package authz

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cachedCatalogFixture(t *testing.T) (*CachedCatalog, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCachedCatalog(nil, client, time.Minute, nil), mr
}

func seedCatalogCache(t *testing.T, mr *miniredis.Miniredis, records []roleRecord) {
	t.Helper()
	payload, err := json.Marshal(records)
	require.NoError(t, err)
	require.NoError(t, mr.Set(catalogCacheKey, string(payload)))
}

func TestCachedCatalogServesFromCache(t *testing.T) {
	catalog, mr := cachedCatalogFixture(t)
	seedCatalogCache(t, mr, []roleRecord{
		{
			ID:                 "def-1",
			RoleName:           "auditor",
			DisplayName:        "Auditor",
			HierarchyLevel:     30,
			DefaultPermissions: []string{"report:read", "document:read"},
			MaxScope:           "account",
			IsActive:           true,
		},
		{
			ID:                 "def-2",
			RoleName:           RoleAdmin,
			DisplayName:        "Administrator",
			HierarchyLevel:     90,
			DefaultPermissions: []string{"account:manage"},
			AssignableRoles:    []string{"auditor"},
			MaxScope:           "global",
			IsSystemRole:       true,
			IsActive:           true,
		},
	})

	snap, err := catalog.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, snap.Len())

	auditor, ok := snap.Get("auditor")
	require.True(t, ok)
	assert.Equal(t, ScopeAccount, auditor.MaxScope)
	require.Len(t, auditor.DefaultRules, 2)

	admin, ok := snap.Get(RoleAdmin)
	require.True(t, ok)
	assert.True(t, admin.CanAssign("auditor"))

	// Highest hierarchy level first.
	defs := snap.ListActive()
	assert.Equal(t, RoleAdmin, defs[0].RoleName)
	assert.Equal(t, "auditor", defs[1].RoleName)
}

func TestCachedCatalogInvalidate(t *testing.T) {
	catalog, mr := cachedCatalogFixture(t)
	seedCatalogCache(t, mr, []roleRecord{{RoleName: "viewer", IsActive: true}})

	require.NoError(t, catalog.Invalidate(context.Background()))
	assert.False(t, mr.Exists(catalogCacheKey))

	// Invalidating an already-empty cache is fine.
	require.NoError(t, catalog.Invalidate(context.Background()))
}

func TestBuildSnapshotSkipsMalformedRules(t *testing.T) {
	snap := buildSnapshot([]roleRecord{
		{
			RoleName:           "auditor",
			HierarchyLevel:     30,
			DefaultPermissions: []string{"report:read", "spaceship:warp", "document:read"},
			MaxScope:           "account",
			IsActive:           true,
		},
	}, nil)

	def, ok := snap.Get("auditor")
	require.True(t, ok)
	// The malformed rule is dropped, the valid ones survive.
	require.Len(t, def.DefaultRules, 2)
	assert.Equal(t, ResourceReport, def.DefaultRules[0].Resource)
	assert.Equal(t, ResourceDocument, def.DefaultRules[1].Resource)
}

func TestBuildSnapshotDefaultsUnknownScopeToGlobal(t *testing.T) {
	snap := buildSnapshot([]roleRecord{
		{RoleName: "auditor", MaxScope: "universe", IsActive: true},
		{RoleName: "viewer", IsActive: true},
	}, nil)

	auditor, _ := snap.Get("auditor")
	assert.Equal(t, ScopeGlobal, auditor.MaxScope)
	viewer, _ := snap.Get("viewer")
	assert.Equal(t, ScopeGlobal, viewer.MaxScope)
}
