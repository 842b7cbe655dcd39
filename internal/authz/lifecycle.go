package authz

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-admin/meridian-admin/internal/activity"
	"github.com/meridian-admin/meridian-admin/internal/shared"
)

// Recorder emits activity records for mutations. Emission is
// best-effort: a failed write surfaces as a warning on the mutation
// result, never as a rollback.
type Recorder interface {
	Record(ctx context.Context, entry activity.Entry) error
}

// Lifecycle orchestrates role assignment and permission grant
// mutations. Mutations are serialized per principal around the
// validate-then-insert sequence; resolution reads stay lock-free.
type Lifecycle struct {
	catalog     Catalog
	assignments AssignmentStore
	grants      GrantStore
	recorder    Recorder
	resolver    Resolver
	locks       *shared.KeyedMutex
	logger      *slog.Logger
	now         func() time.Time
}

// NewLifecycle constructs a Lifecycle.
func NewLifecycle(catalog Catalog, assignments AssignmentStore, grants GrantStore, recorder Recorder, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{
		catalog:     catalog,
		assignments: assignments,
		grants:      grants,
		recorder:    recorder,
		locks:       shared.NewKeyedMutex(),
		logger:      logger,
		now:         time.Now,
	}
}

// AssignRoleRequest carries the inputs for one role assignment.
type AssignRoleRequest struct {
	RoleName  string
	Scope     Scope
	ScopeID   string
	ExpiresAt *time.Time
	Notes     string
}

// AssignRoleResult is the success result of AssignRole. Warnings carry
// non-fatal problems such as a failed activity write.
type AssignRoleResult struct {
	Assignment RoleAssignment
	Warnings   []string
}

// AssignRole validates and stores a new role assignment.
//
// Rejections: ErrUnknownRole when the role is not in the active
// catalog; ErrHierarchyViolation when the grantor may not assign the
// role or the scope exceeds the role's maximum; ErrDuplicateAssignment
// when an active, non-expired assignment of the same tuple exists.
// Nothing is written on rejection.
func (l *Lifecycle) AssignRole(ctx context.Context, grantor Actor, principalID string, req AssignRoleRequest) (*AssignRoleResult, error) {
	now := l.now()
	if principalID == "" || req.RoleName == "" {
		return nil, fmt.Errorf("%w: principal and role name required", ErrValidation)
	}
	scope := req.Scope
	if scope == "" {
		scope = ScopeGlobal
	}
	if !scope.Valid() {
		return nil, fmt.Errorf("%w: unknown scope %q", ErrValidation, req.Scope)
	}
	if scope != ScopeGlobal && req.ScopeID == "" {
		return nil, fmt.Errorf("%w: scope %s requires a scope id", ErrValidation, scope)
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: expiry must be in the future", ErrValidation)
	}

	snap, err := l.catalog.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	def, ok := snap.Get(req.RoleName)
	if !ok || !def.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, req.RoleName)
	}
	if !scope.Within(def.MaxScope) {
		return nil, fmt.Errorf("%w: scope %s exceeds role maximum %s", ErrHierarchyViolation, scope, def.MaxScope)
	}
	if !grantor.System {
		if err := l.checkGrantorMayAssign(ctx, grantor, snap, req.RoleName, now); err != nil {
			return nil, err
		}
	}

	unlock := l.locks.Lock(principalID)
	defer unlock()

	existing, err := l.assignments.ListActiveFor(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	for _, a := range existing {
		if a.SameTuple(req.RoleName, scope, req.ScopeID) && !a.Expired(now) {
			return nil, fmt.Errorf("%w: %s at %s scope", ErrDuplicateAssignment, req.RoleName, scope)
		}
	}

	assignment := RoleAssignment{
		ID:          uuid.NewString(),
		PrincipalID: principalID,
		RoleName:    req.RoleName,
		Scope:       scope,
		ScopeID:     req.ScopeID,
		GrantedBy:   grantor.ID,
		GrantedAt:   now.UTC(),
		ExpiresAt:   req.ExpiresAt,
		IsActive:    true,
		Notes:       req.Notes,
	}
	if err := l.assignments.Insert(ctx, assignment); err != nil {
		return nil, err
	}

	result := &AssignRoleResult{Assignment: assignment}
	result.Warnings = l.record(ctx, activity.Entry{
		PrincipalID:  principalID,
		ActivityType: activity.TypeRoleAssigned,
		TargetType:   "role_assignment",
		TargetID:     assignment.ID,
		Description:  fmt.Sprintf("Role assigned: %s (%s scope)", req.RoleName, scope),
		Metadata: map[string]any{
			"role_name":  req.RoleName,
			"scope":      string(scope),
			"scope_id":   req.ScopeID,
			"granted_by": grantor.ID,
		},
		OccurredAt: now.UTC(),
	})
	return result, nil
}

// RevokeResult is the success result of a revoke call. Revoked is false
// when the target was already inactive; repeated revokes are no-op
// successes because callers commonly re-issue them defensively.
type RevokeResult struct {
	Revoked  bool
	Warnings []string
}

// RevokeRole soft-revokes an assignment. Rows are never deleted and a
// revoked assignment never transitions back; a new assignment must be
// created instead.
func (l *Lifecycle) RevokeRole(ctx context.Context, actor Actor, assignmentID, reason string) (*RevokeResult, error) {
	assignment, err := l.assignments.Get(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	unlock := l.locks.Lock(assignment.PrincipalID)
	defer unlock()

	revoked, err := l.assignments.SoftRevoke(ctx, assignmentID, reason)
	if err != nil {
		return nil, err
	}
	result := &RevokeResult{Revoked: revoked}
	if !revoked {
		return result, nil
	}
	result.Warnings = l.record(ctx, activity.Entry{
		PrincipalID:  assignment.PrincipalID,
		ActivityType: activity.TypeRoleRevoked,
		TargetType:   "role_assignment",
		TargetID:     assignmentID,
		Description:  fmt.Sprintf("Role revoked: %s", assignment.RoleName),
		Metadata: map[string]any{
			"role_name":  assignment.RoleName,
			"scope":      string(assignment.Scope),
			"reason":     reason,
			"revoked_by": actor.ID,
		},
		OccurredAt: l.now().UTC(),
	})
	return result, nil
}

// GrantPermissionRequest carries the inputs for one direct grant.
type GrantPermissionRequest struct {
	PermissionName string
	ResourceType   ResourceType
	Action         Action
	ResourceID     string
	ExpiresAt      *time.Time
	Conditions     map[string]any
}

// GrantPermissionResult is the success result of GrantPermission.
type GrantPermissionResult struct {
	Grant    PermissionGrant
	Warnings []string
}

// GrantPermission stores a direct permission grant. The grantor must
// itself resolve to allowed for the exact resource/action pair, so a
// principal can never hand out authority it does not hold.
func (l *Lifecycle) GrantPermission(ctx context.Context, grantor Actor, principalID string, req GrantPermissionRequest) (*GrantPermissionResult, error) {
	now := l.now()
	if principalID == "" || req.PermissionName == "" {
		return nil, fmt.Errorf("%w: principal and permission name required", ErrValidation)
	}
	if !KnownResourceType(req.ResourceType) {
		return nil, fmt.Errorf("%w: unknown resource type %q", ErrValidation, req.ResourceType)
	}
	if !KnownAction(req.Action) {
		return nil, fmt.Errorf("%w: unknown action %q", ErrValidation, req.Action)
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: expiry must be in the future", ErrValidation)
	}

	if !grantor.System {
		snap, err := l.catalog.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		held, err := l.grantorAllows(ctx, grantor, snap, req.ResourceType, req.Action, now)
		if err != nil {
			return nil, err
		}
		if !held {
			return nil, fmt.Errorf("%w: grantor does not hold %s on %s", ErrSelfEscalationDenied, req.Action, req.ResourceType)
		}
	}

	unlock := l.locks.Lock(principalID)
	defer unlock()

	grant := PermissionGrant{
		ID:             uuid.NewString(),
		PrincipalID:    principalID,
		PermissionName: req.PermissionName,
		ResourceType:   req.ResourceType,
		ResourceID:     req.ResourceID,
		Action:         req.Action,
		GrantedBy:      grantor.ID,
		GrantedAt:      now.UTC(),
		ExpiresAt:      req.ExpiresAt,
		Conditions:     req.Conditions,
		IsActive:       true,
	}
	if err := l.grants.Insert(ctx, grant); err != nil {
		return nil, err
	}

	result := &GrantPermissionResult{Grant: grant}
	result.Warnings = l.record(ctx, activity.Entry{
		PrincipalID:  principalID,
		ActivityType: activity.TypePermissionGranted,
		TargetType:   "permission_grant",
		TargetID:     grant.ID,
		Description:  fmt.Sprintf("Permission granted: %s (%s on %s)", req.PermissionName, req.Action, req.ResourceType),
		Metadata: map[string]any{
			"permission_name": req.PermissionName,
			"resource_type":   string(req.ResourceType),
			"resource_id":     req.ResourceID,
			"action":          string(req.Action),
			"granted_by":      grantor.ID,
		},
		OccurredAt: now.UTC(),
	})
	return result, nil
}

// RevokePermission soft-revokes a grant with the same idempotent
// semantics as RevokeRole.
func (l *Lifecycle) RevokePermission(ctx context.Context, actor Actor, grantID, reason string) (*RevokeResult, error) {
	grant, err := l.grants.Get(ctx, grantID)
	if err != nil {
		return nil, err
	}

	unlock := l.locks.Lock(grant.PrincipalID)
	defer unlock()

	revoked, err := l.grants.SoftRevoke(ctx, grantID, reason)
	if err != nil {
		return nil, err
	}
	result := &RevokeResult{Revoked: revoked}
	if !revoked {
		return result, nil
	}
	result.Warnings = l.record(ctx, activity.Entry{
		PrincipalID:  grant.PrincipalID,
		ActivityType: activity.TypePermissionRevoked,
		TargetType:   "permission_grant",
		TargetID:     grantID,
		Description:  fmt.Sprintf("Permission revoked: %s on %s", grant.PermissionName, grant.ResourceType),
		Metadata: map[string]any{
			"permission_name": grant.PermissionName,
			"resource_type":   string(grant.ResourceType),
			"action":          string(grant.Action),
			"reason":          reason,
			"revoked_by":      actor.ID,
		},
		OccurredAt: l.now().UTC(),
	})
	return result, nil
}

// checkGrantorMayAssign enforces the hierarchy constraint: the
// grantor's most authoritative active role must list the requested role
// as assignable.
func (l *Lifecycle) checkGrantorMayAssign(ctx context.Context, grantor Actor, snap Snapshot, roleName string, now time.Time) error {
	if grantor.ID == "" {
		return fmt.Errorf("%w: grantor unknown", ErrHierarchyViolation)
	}
	held, err := l.assignments.ListActiveFor(ctx, grantor.ID)
	if err != nil {
		return fmt.Errorf("list grantor assignments: %w", err)
	}
	var top *RoleDefinition
	for _, a := range held {
		if a.Expired(now) {
			continue
		}
		def, ok := snap.Get(a.RoleName)
		if !ok || !def.IsActive {
			continue
		}
		if top == nil || def.HierarchyLevel > top.HierarchyLevel {
			d := def
			top = &d
		}
	}
	if top == nil {
		return fmt.Errorf("%w: grantor holds no active role", ErrHierarchyViolation)
	}
	if !top.CanAssign(roleName) {
		return fmt.Errorf("%w: role %s may not assign %s", ErrHierarchyViolation, top.RoleName, roleName)
	}
	return nil
}

// grantorAllows resolves the grantor's own matrix cell for the pair.
func (l *Lifecycle) grantorAllows(ctx context.Context, grantor Actor, snap Snapshot, rt ResourceType, act Action, now time.Time) (bool, error) {
	if grantor.ID == "" {
		return false, nil
	}
	assignments, err := l.assignments.ListActiveFor(ctx, grantor.ID)
	if err != nil {
		return false, fmt.Errorf("list grantor assignments: %w", err)
	}
	grants, err := l.grants.ListActiveFor(ctx, grantor.ID)
	if err != nil {
		return false, fmt.Errorf("list grantor grants: %w", err)
	}
	matrix := l.resolver.Resolve(grantor.ID, snap, assignments, grants, now)
	return matrix.Allowed(rt, act), nil
}

// record emits one activity entry, translating failure into a warning.
func (l *Lifecycle) record(ctx context.Context, entry activity.Entry) []string {
	if l.recorder == nil {
		return nil
	}
	if err := l.recorder.Record(ctx, entry); err != nil {
		if l.logger != nil {
			l.logger.Warn("activity record failed",
				slog.String("type", entry.ActivityType),
				slog.Any("error", err))
		}
		return []string{fmt.Sprintf("activity record not written: %v", err)}
	}
	return nil
}
