package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-admin/meridian-admin/internal/observability"
)

// Service is the engine's front door for administration and UI
// collaborators: matrix resolution, validation, single-cell checks and
// the lifecycle mutations.
type Service struct {
	catalog     Catalog
	assignments AssignmentStore
	grants      GrantStore
	lifecycle   *Lifecycle
	resolver    Resolver
	metrics     *observability.Metrics
	now         func() time.Time
}

// NewService constructs a Service. Metrics may be nil.
func NewService(catalog Catalog, assignments AssignmentStore, grants GrantStore, lifecycle *Lifecycle, metrics *observability.Metrics) *Service {
	return &Service{
		catalog:     catalog,
		assignments: assignments,
		grants:      grants,
		lifecycle:   lifecycle,
		metrics:     metrics,
		now:         time.Now,
	}
}

// ResolveEffectivePermissions computes the principal's matrix from one
// consistent catalog snapshot and the current store contents. The
// matrix is recomputed on every call, never persisted.
func (s *Service) ResolveEffectivePermissions(ctx context.Context, principalID string) (Matrix, error) {
	start := s.now()
	snap, assignments, grants, err := s.fetchInputs(ctx, principalID)
	if err != nil {
		return Matrix{}, err
	}
	matrix := s.resolver.Resolve(principalID, snap, assignments, grants, s.now())
	s.metrics.ObserveResolution(s.now().Sub(start))
	return matrix, nil
}

// ValidatePermissions resolves and scores the principal's matrix.
func (s *Service) ValidatePermissions(ctx context.Context, principalID string) (ValidationReport, error) {
	snap, assignments, grants, err := s.fetchInputs(ctx, principalID)
	if err != nil {
		return ValidationReport{}, err
	}
	now := s.now()
	matrix := s.resolver.Resolve(principalID, snap, assignments, grants, now)
	return ValidateMatrix(matrix, snap, assignments, grants, now), nil
}

// CheckPermission answers a single-cell question. Unlike the full
// matrix, it honors resource ID narrowing on direct grants: a grant
// scoped to one resource instance does not cover a different instance.
func (s *Service) CheckPermission(ctx context.Context, principalID string, rt ResourceType, act Action, resourceID string) (bool, error) {
	if !KnownResourceType(rt) {
		return false, fmt.Errorf("%w: unknown resource type %q", ErrValidation, rt)
	}
	if !KnownAction(act) {
		return false, fmt.Errorf("%w: unknown action %q", ErrValidation, act)
	}
	snap, assignments, grants, err := s.fetchInputs(ctx, principalID)
	if err != nil {
		return false, err
	}
	now := s.now()
	for _, grant := range grants {
		if !grant.IsActive || grant.Expired(now) {
			continue
		}
		if grant.ResourceType == rt && grant.Action == act && grant.AppliesTo(resourceID) {
			return true, nil
		}
	}
	// Role and inherited sources ignore resource IDs; resolve with the
	// direct grants left out so a narrowed grant cannot leak through
	// the matrix path.
	matrix := s.resolver.Resolve(principalID, snap, assignments, nil, now)
	return matrix.Allowed(rt, act), nil
}

// ListRoleDefinitions exposes the active catalog snapshot.
func (s *Service) ListRoleDefinitions(ctx context.Context) ([]RoleDefinition, error) {
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.ListActive(), nil
}

// ListRoleAssignments returns the principal's active assignments.
func (s *Service) ListRoleAssignments(ctx context.Context, principalID string) ([]RoleAssignment, error) {
	return s.assignments.ListActiveFor(ctx, principalID)
}

// ListPermissionGrants returns the principal's active direct grants.
func (s *Service) ListPermissionGrants(ctx context.Context, principalID string) ([]PermissionGrant, error) {
	return s.grants.ListActiveFor(ctx, principalID)
}

// AssignRole delegates to the lifecycle manager.
func (s *Service) AssignRole(ctx context.Context, grantor Actor, principalID string, req AssignRoleRequest) (*AssignRoleResult, error) {
	result, err := s.lifecycle.AssignRole(ctx, grantor, principalID, req)
	if err != nil {
		s.metrics.IncRejection(rejectionKind(err))
	}
	return result, err
}

// RevokeRole delegates to the lifecycle manager.
func (s *Service) RevokeRole(ctx context.Context, actor Actor, assignmentID, reason string) (*RevokeResult, error) {
	return s.lifecycle.RevokeRole(ctx, actor, assignmentID, reason)
}

// GrantPermission delegates to the lifecycle manager.
func (s *Service) GrantPermission(ctx context.Context, grantor Actor, principalID string, req GrantPermissionRequest) (*GrantPermissionResult, error) {
	result, err := s.lifecycle.GrantPermission(ctx, grantor, principalID, req)
	if err != nil {
		s.metrics.IncRejection(rejectionKind(err))
	}
	return result, err
}

// RevokePermission delegates to the lifecycle manager.
func (s *Service) RevokePermission(ctx context.Context, actor Actor, grantID, reason string) (*RevokeResult, error) {
	return s.lifecycle.RevokePermission(ctx, actor, grantID, reason)
}

func (s *Service) fetchInputs(ctx context.Context, principalID string) (Snapshot, []RoleAssignment, []PermissionGrant, error) {
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return Snapshot{}, nil, nil, fmt.Errorf("load catalog: %w", err)
	}
	assignments, err := s.assignments.ListActiveFor(ctx, principalID)
	if err != nil {
		return Snapshot{}, nil, nil, err
	}
	grants, err := s.grants.ListActiveFor(ctx, principalID)
	if err != nil {
		return Snapshot{}, nil, nil, err
	}
	return snap, assignments, grants, nil
}
