package authz

import "errors"

// Rejection taxonomy for mutation calls. Callers branch with errors.Is
// and present distinct messages per kind.
var (
	// ErrNotFound indicates the requested assignment or grant does
	// not exist.
	ErrNotFound = errors.New("authz: not found")
	// ErrUnknownRole indicates the role name is not in the active
	// catalog.
	ErrUnknownRole = errors.New("authz: unknown role")
	// ErrDuplicateAssignment indicates the principal already holds an
	// active, non-expired assignment of the same tuple.
	ErrDuplicateAssignment = errors.New("authz: duplicate assignment")
	// ErrHierarchyViolation indicates the grantor is not authorized to
	// assign the requested role, or the scope exceeds the role's
	// maximum scope.
	ErrHierarchyViolation = errors.New("authz: hierarchy violation")
	// ErrSelfEscalationDenied indicates a grantor attempted to grant a
	// permission it does not itself hold.
	ErrSelfEscalationDenied = errors.New("authz: self-escalation denied")
	// ErrInconsistentReference indicates an assignment or grant points
	// at a catalog entry that no longer exists. Resolution degrades
	// (skip plus warning) rather than failing on it.
	ErrInconsistentReference = errors.New("authz: inconsistent reference")
	// ErrValidation indicates a malformed mutation request.
	ErrValidation = errors.New("authz: validation failed")
)

// rejectionKind labels an error for the rejection metrics.
func rejectionKind(err error) string {
	switch {
	case errors.Is(err, ErrUnknownRole):
		return "unknown_role"
	case errors.Is(err, ErrDuplicateAssignment):
		return "duplicate_assignment"
	case errors.Is(err, ErrHierarchyViolation):
		return "hierarchy_violation"
	case errors.Is(err, ErrSelfEscalationDenied):
		return "self_escalation"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
