package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServiceFixture(t *testing.T) (*Service, *mockAssignmentStore, *mockGrantStore) {
	t.Helper()
	catalog := &mockCatalog{snap: testSnapshot(t)}
	assignments := newMockAssignmentStore()
	grants := newMockGrantStore()
	lifecycle := NewLifecycle(catalog, assignments, grants, nil, nil)
	lifecycle.now = func() time.Time { return testClock }
	svc := NewService(catalog, assignments, grants, lifecycle, nil)
	svc.now = func() time.Time { return testClock }
	return svc, assignments, grants
}

func TestCheckPermissionViaRole(t *testing.T) {
	svc, assignments, _ := newServiceFixture(t)
	ctx := context.Background()
	assignments.items["a1"] = activeAssignment("p-1", "analyst")

	allowed, err := svc.CheckPermission(ctx, "p-1", ResourceReport, ActionRead, "")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = svc.CheckPermission(ctx, "p-1", ResourceReport, ActionDelete, "")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCheckPermissionRolePathIgnoresResourceID(t *testing.T) {
	svc, assignments, _ := newServiceFixture(t)
	assignments.items["a1"] = activeAssignment("p-1", "analyst")

	// Role rules carry no resource IDs, so any instance is covered.
	allowed, err := svc.CheckPermission(context.Background(), "p-1", ResourceReport, ActionRead, "rpt-999")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckPermissionGrantNarrowedToResource(t *testing.T) {
	svc, _, grants := newServiceFixture(t)
	ctx := context.Background()

	grant := activeGrant("p-1", ResourceDocument, ActionDelete)
	grant.ResourceID = "doc-1"
	grants.items[grant.ID] = grant

	allowed, err := svc.CheckPermission(ctx, "p-1", ResourceDocument, ActionDelete, "doc-1")
	require.NoError(t, err)
	assert.True(t, allowed)

	// A different instance is not covered.
	allowed, err = svc.CheckPermission(ctx, "p-1", ResourceDocument, ActionDelete, "doc-2")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Neither is an unqualified check: the grant must not widen.
	allowed, err = svc.CheckPermission(ctx, "p-1", ResourceDocument, ActionDelete, "")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCheckPermissionUnscopedGrantCoversAnyInstance(t *testing.T) {
	svc, _, grants := newServiceFixture(t)
	grant := activeGrant("p-1", ResourceDocument, ActionDelete)
	grants.items[grant.ID] = grant

	allowed, err := svc.CheckPermission(context.Background(), "p-1", ResourceDocument, ActionDelete, "doc-7")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckPermissionExpiredGrantDenied(t *testing.T) {
	svc, _, grants := newServiceFixture(t)
	past := testClock.Add(-time.Minute)
	grant := activeGrant("p-1", ResourceDocument, ActionDelete)
	grant.ExpiresAt = &past
	grants.items[grant.ID] = grant

	allowed, err := svc.CheckPermission(context.Background(), "p-1", ResourceDocument, ActionDelete, "")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCheckPermissionRejectsUnknownPair(t *testing.T) {
	svc, _, _ := newServiceFixture(t)
	ctx := context.Background()

	_, err := svc.CheckPermission(ctx, "p-1", "starship", ActionRead, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = svc.CheckPermission(ctx, "p-1", ResourceReport, "teleport", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestResolveEffectivePermissionsThroughService(t *testing.T) {
	svc, assignments, grants := newServiceFixture(t)
	assignments.items["a1"] = activeAssignment("p-1", "viewer")
	grant := activeGrant("p-1", ResourceTool, ActionExecute)
	grants.items[grant.ID] = grant

	matrix, err := svc.ResolveEffectivePermissions(context.Background(), "p-1")
	require.NoError(t, err)

	cell, ok := matrix.Lookup(ResourceReport, ActionRead)
	require.True(t, ok)
	assert.True(t, cell.Allowed)
	assert.Equal(t, SourceRole, cell.Source)

	cell, ok = matrix.Lookup(ResourceTool, ActionExecute)
	require.True(t, ok)
	assert.True(t, cell.Allowed)
	assert.Equal(t, SourceDirect, cell.Source)
}

func TestValidatePermissionsThroughService(t *testing.T) {
	svc, assignments, grants := newServiceFixture(t)
	assignments.items["a1"] = activeAssignment("p-1", "analyst")
	// Redundant: analyst already carries report:read by rule.
	grant := activeGrant("p-1", ResourceReport, ActionRead)
	grants.items[grant.ID] = grant

	report, err := svc.ValidatePermissions(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Redundant)
	assert.Equal(t, 0, report.Conflicts)
}

func TestServiceCatalogFailurePropagates(t *testing.T) {
	catalog := &mockCatalog{err: errors.New("redis gone")}
	assignments := newMockAssignmentStore()
	grants := newMockGrantStore()
	svc := NewService(catalog, assignments, grants, NewLifecycle(catalog, assignments, grants, nil, nil), nil)

	_, err := svc.ResolveEffectivePermissions(context.Background(), "p-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load catalog")
}

func TestListRoleDefinitionsThroughService(t *testing.T) {
	svc, _, _ := newServiceFixture(t)

	defs, err := svc.ListRoleDefinitions(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 5)
	// Highest authority first.
	assert.Equal(t, RoleSuperAdmin, defs[0].RoleName)
}
