package authz

import (
	"fmt"
	"sort"
	"time"
)

// Resolver computes effective permission matrices. It is stateless and
// side-effect free: every call works over an immutable catalog snapshot
// and pre-fetched assignment/grant slices, so resolutions may run
// concurrently without locking.
type Resolver struct{}

// Resolve evaluates the full resource/action cross-product for one
// principal at the given instant.
//
// Per cell, in order: a matching active, non-expired direct grant wins
// outright; otherwise the set of roles whose rules grant the cell is
// collected (two or more distinct roles mark a conflict); otherwise
// hierarchy-implied authority is consulted; otherwise the cell is
// denied. Denial is a legitimate result, never an error.
//
// Assignments referencing a role missing from the snapshot are skipped
// and surfaced as warnings on the matrix rather than failing the call.
func (Resolver) Resolve(principalID string, snap Snapshot, assignments []RoleAssignment, grants []PermissionGrant, now time.Time) Matrix {
	matrix := Matrix{PrincipalID: principalID}

	held := make([]heldRole, 0, len(assignments))
	for _, assignment := range assignments {
		if !assignment.IsActive || assignment.Expired(now) {
			continue
		}
		def, ok := snap.Get(assignment.RoleName)
		if !ok || !def.IsActive {
			matrix.Warnings = append(matrix.Warnings, fmt.Sprintf(
				"%v: assignment %s references role %q missing from the active catalog",
				ErrInconsistentReference, assignment.ID, assignment.RoleName))
			continue
		}
		held = append(held, heldRole{assignment: assignment, def: def})
	}
	// Highest hierarchy first so the authoritative role is always the
	// first match; ties break on role name for determinism.
	sort.SliceStable(held, func(i, j int) bool {
		if held[i].def.HierarchyLevel != held[j].def.HierarchyLevel {
			return held[i].def.HierarchyLevel > held[j].def.HierarchyLevel
		}
		return held[i].def.RoleName < held[j].def.RoleName
	})

	active := make([]PermissionGrant, 0, len(grants))
	for _, grant := range grants {
		if grant.IsActive && !grant.Expired(now) {
			active = append(active, grant)
		}
	}

	matrix.Entries = make([]EffectivePermission, 0, len(ResourceTypes())*len(Actions()))
	for _, rt := range ResourceTypes() {
		for _, act := range Actions() {
			matrix.Entries = append(matrix.Entries, resolveCell(rt, act, held, active))
		}
	}
	return matrix
}

type heldRole struct {
	assignment RoleAssignment
	def        RoleDefinition
}

func resolveCell(rt ResourceType, act Action, held []heldRole, grants []PermissionGrant) EffectivePermission {
	entry := EffectivePermission{Resource: rt, Action: act}

	// Direct grants win outright; they are an explicit per-resource
	// override that a broader role must never shadow. Resource ID
	// narrowing applies at enforcement, not to matrix membership.
	for _, grant := range grants {
		if grant.ResourceType == rt && grant.Action == act {
			entry.Allowed = true
			entry.Source = SourceDirect
			return entry
		}
	}

	// Role rules. Conflicts only count distinct role names: the same
	// role held in two scopes is not a conflict.
	granting := make([]string, 0, 2)
	seen := make(map[string]struct{}, 2)
	for _, h := range held {
		if _, dup := seen[h.def.RoleName]; dup {
			continue
		}
		if h.def.Grants(rt, act) {
			granting = append(granting, h.def.RoleName)
			seen[h.def.RoleName] = struct{}{}
		}
	}
	if len(granting) > 0 {
		entry.Allowed = true
		entry.Source = SourceRole
		entry.RoleName = granting[0]
		entry.Conflict = len(granting) > 1
		return entry
	}

	// Hierarchy-implied authority; first matching rule wins.
	for _, h := range held {
		if impliedByHierarchy(h.def, rt, act) {
			entry.Allowed = true
			entry.Source = SourceInherited
			entry.RoleName = h.def.RoleName
			return entry
		}
	}
	return entry
}

// impliedByHierarchy covers authority not enumerated in a role's rules:
// super_admin implies everything, admin everything outside system, and
// any role at or above the inherit level implies read/create/update on
// account, profile and client resources.
func impliedByHierarchy(def RoleDefinition, rt ResourceType, act Action) bool {
	if def.RoleName == RoleSuperAdmin {
		return true
	}
	if def.RoleName == RoleAdmin && rt != ResourceSystem {
		return true
	}
	if def.HierarchyLevel >= inheritLevel {
		switch act {
		case ActionRead, ActionCreate, ActionUpdate:
		default:
			return false
		}
		switch rt {
		case ResourceAccount, ResourceProfile, ResourceClient:
			return true
		}
	}
	return false
}
