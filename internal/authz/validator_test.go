package authz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validate(t *testing.T, assignments []RoleAssignment, grants []PermissionGrant) ValidationReport {
	t.Helper()
	snap := testSnapshot(t)
	var resolver Resolver
	matrix := resolver.Resolve("p-1", snap, assignments, grants, testClock)
	return ValidateMatrix(matrix, snap, assignments, grants, testClock)
}

func TestValidateCleanMatrix(t *testing.T) {
	report := validate(t, []RoleAssignment{activeAssignment("p-1", RoleAdmin)}, nil)

	assert.Zero(t, report.Conflicts)
	assert.Zero(t, report.Redundant)
	assert.Zero(t, report.Gaps)
	assert.Empty(t, report.Recommendations)
}

func TestValidateCountsConflicts(t *testing.T) {
	report := validate(t, []RoleAssignment{
		activeAssignment("p-1", "manager"),
		activeAssignment("p-1", "analyst"),
	}, nil)

	// manager and analyst both grant report:read.
	assert.Equal(t, 1, report.Conflicts)
	assert.Contains(t, report.Recommendations, "Resolve 1 permission conflicts")
}

func TestValidateRedundantGrantViaRoleRule(t *testing.T) {
	report := validate(t,
		[]RoleAssignment{activeAssignment("p-1", "analyst")},
		[]PermissionGrant{activeGrant("p-1", ResourceReport, ActionRead)})

	assert.Equal(t, 1, report.Redundant)
	assert.Contains(t, report.Recommendations, "Remove 1 redundant direct permissions")
}

func TestValidateRedundantGrantViaInheritedAuthority(t *testing.T) {
	// manager holds no explicit account rule, but hierarchy implies
	// account:read; a direct grant for it is still redundant.
	report := validate(t,
		[]RoleAssignment{activeAssignment("p-1", "manager")},
		[]PermissionGrant{activeGrant("p-1", ResourceAccount, ActionRead)})

	assert.Equal(t, 1, report.Redundant)
}

func TestValidateNonRedundantGrant(t *testing.T) {
	report := validate(t,
		[]RoleAssignment{activeAssignment("p-1", "analyst")},
		[]PermissionGrant{activeGrant("p-1", ResourceTool, ActionExecute)})

	assert.Zero(t, report.Redundant)
}

func TestValidateExpiredGrantNotCounted(t *testing.T) {
	grant := activeGrant("p-1", ResourceReport, ActionRead)
	past := testClock.Add(-time.Minute)
	grant.ExpiresAt = &past

	report := validate(t,
		[]RoleAssignment{activeAssignment("p-1", "analyst")},
		[]PermissionGrant{grant})

	assert.Zero(t, report.Redundant)
}

func TestValidateGapsForCriticalPermissions(t *testing.T) {
	report := validate(t, []RoleAssignment{activeAssignment("p-1", "viewer")}, nil)

	require.Equal(t, 2, report.Gaps)
	assert.Contains(t, report.Recommendations, "Missing critical permission: read on profile")
	assert.Contains(t, report.Recommendations, "Missing critical permission: read on account")
}

func TestValidateAggregatesAllCategories(t *testing.T) {
	report := validate(t,
		[]RoleAssignment{
			activeAssignment("p-1", "manager"),
			activeAssignment("p-1", "analyst"),
		},
		[]PermissionGrant{activeGrant("p-1", ResourceDocument, ActionRead)})

	assert.Equal(t, 1, report.Conflicts)
	assert.Equal(t, 1, report.Redundant)
	assert.Zero(t, report.Gaps)
	assert.Len(t, report.Recommendations, 2)
}
