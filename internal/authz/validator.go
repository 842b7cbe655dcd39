package authz

import (
	"fmt"
	"time"
)

// ValidationReport scores a resolved matrix: conflicting role grants,
// direct grants made redundant by role coverage, and missing critical
// permissions. Recommendations are deterministic and per category, not
// per cell.
type ValidationReport struct {
	Conflicts       int      `json:"conflicts"`
	Redundant       int      `json:"redundant"`
	Gaps            int      `json:"gaps"`
	Recommendations []string `json:"recommendations"`
}

// ValidateMatrix inspects a resolved matrix together with the inputs it
// was resolved from.
//
// A direct grant is redundant when at least one of the principal's
// active roles already covers its resource/action pair, through an
// explicit rule or through hierarchy-implied authority; the grant adds
// nothing and obscures which role is authoritative.
func ValidateMatrix(matrix Matrix, snap Snapshot, assignments []RoleAssignment, grants []PermissionGrant, now time.Time) ValidationReport {
	report := ValidationReport{Recommendations: []string{}}

	for _, entry := range matrix.Entries {
		if entry.Conflict {
			report.Conflicts++
		}
	}

	var heldDefs []RoleDefinition
	for _, assignment := range assignments {
		if !assignment.IsActive || assignment.Expired(now) {
			continue
		}
		if def, ok := snap.Get(assignment.RoleName); ok && def.IsActive {
			heldDefs = append(heldDefs, def)
		}
	}

	for _, grant := range grants {
		if !grant.IsActive || grant.Expired(now) {
			continue
		}
		for _, def := range heldDefs {
			if def.Grants(grant.ResourceType, grant.Action) || impliedByHierarchy(def, grant.ResourceType, grant.Action) {
				report.Redundant++
				break
			}
		}
	}

	for _, critical := range criticalPermissions {
		if !matrix.Allowed(critical.Resource, critical.Action) {
			report.Gaps++
			report.Recommendations = append(report.Recommendations, fmt.Sprintf(
				"Missing critical permission: %s on %s", critical.Action, critical.Resource))
		}
	}

	if report.Conflicts > 0 {
		report.Recommendations = append(report.Recommendations, fmt.Sprintf(
			"Resolve %d permission conflicts", report.Conflicts))
	}
	if report.Redundant > 0 {
		report.Recommendations = append(report.Recommendations, fmt.Sprintf(
			"Remove %d redundant direct permissions", report.Redundant))
	}
	return report
}
