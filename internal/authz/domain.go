package authz

import "time"

// Scope describes the breadth at which a role assignment or permission
// grant applies. Global is the widest, project the narrowest.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeAccount Scope = "account"
	ScopeTool    Scope = "tool"
	ScopeClient  Scope = "client"
	ScopeProject Scope = "project"
)

var scopeBreadth = map[Scope]int{
	ScopeGlobal:  4,
	ScopeAccount: 3,
	ScopeTool:    2,
	ScopeClient:  1,
	ScopeProject: 0,
}

// Valid reports whether the scope is one of the known values.
func (s Scope) Valid() bool {
	_, ok := scopeBreadth[s]
	return ok
}

// Within reports whether the scope is at most as broad as max.
func (s Scope) Within(max Scope) bool {
	return scopeBreadth[s] <= scopeBreadth[max]
}

// ResourceType identifies a protected resource class.
type ResourceType string

const (
	ResourceAccount     ResourceType = "account"
	ResourceProfile     ResourceType = "profile"
	ResourceTool        ResourceType = "tool"
	ResourceClient      ResourceType = "client"
	ResourceReport      ResourceType = "report"
	ResourceCalculation ResourceType = "calculation"
	ResourceDocument    ResourceType = "document"
	ResourceSystem      ResourceType = "system"
)

// Action identifies an operation on a resource type.
type Action string

const (
	ActionRead    Action = "read"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionManage  Action = "manage"
	ActionExecute Action = "execute"
)

// ResourceTypes is the fixed resource catalog. The effective permission
// matrix always covers the full ResourceTypes x Actions cross-product,
// in this order.
func ResourceTypes() []ResourceType {
	return []ResourceType{
		ResourceAccount,
		ResourceProfile,
		ResourceTool,
		ResourceClient,
		ResourceReport,
		ResourceCalculation,
		ResourceDocument,
		ResourceSystem,
	}
}

// Actions is the fixed action catalog.
func Actions() []Action {
	return []Action{
		ActionRead,
		ActionCreate,
		ActionUpdate,
		ActionDelete,
		ActionManage,
		ActionExecute,
	}
}

// KnownResourceType reports whether rt is part of the fixed catalog.
func KnownResourceType(rt ResourceType) bool {
	for _, known := range ResourceTypes() {
		if rt == known {
			return true
		}
	}
	return false
}

// KnownAction reports whether act is part of the fixed catalog.
func KnownAction(act Action) bool {
	for _, known := range Actions() {
		if act == known {
			return true
		}
	}
	return false
}

// Role names with hierarchy-implied authority beyond their
// enumerated rules.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
)

// inheritLevel is the hierarchy level at and above which roles imply
// read/create/update on account, profile and client resources.
const inheritLevel = 70

// expiresSoonWindow is the lead time within which an assignment is
// reported as expiring soon.
const expiresSoonWindow = 7 * 24 * time.Hour

// RoleDefinition is an immutable-per-version catalog entry. The core only
// reads definitions; catalog administration happens elsewhere.
type RoleDefinition struct {
	ID              string
	RoleName        string
	DisplayName     string
	Description     string
	HierarchyLevel  int
	DefaultRules    []Rule
	AssignableRoles []string
	MaxScope        Scope
	IsSystemRole    bool
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CanAssign reports whether the definition permits granting roleName
// to others.
func (d RoleDefinition) CanAssign(roleName string) bool {
	for _, name := range d.AssignableRoles {
		if name == roleName {
			return true
		}
	}
	return false
}

// Grants reports whether any of the definition's default rules matches
// the resource/action pair.
func (d RoleDefinition) Grants(rt ResourceType, act Action) bool {
	for _, rule := range d.DefaultRules {
		if rule.Matches(rt, act) {
			return true
		}
	}
	return false
}

// RoleAssignment is one principal holding one role in one scope.
// Assignments are never physically deleted; revocation flips IsActive.
type RoleAssignment struct {
	ID          string
	PrincipalID string
	RoleName    string
	Scope       Scope
	ScopeID     string
	GrantedBy   string
	GrantedAt   time.Time
	ExpiresAt   *time.Time
	IsActive    bool
	Notes       string
}

// Expired reports whether the assignment has passed its expiry at the
// given instant. Expiry is never stored; it is evaluated lazily with
// the reader's clock.
func (a RoleAssignment) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(now)
}

// ExpiresSoon reports whether the assignment expires within the next
// seven days.
func (a RoleAssignment) ExpiresSoon(now time.Time) bool {
	if a.ExpiresAt == nil || a.Expired(now) {
		return false
	}
	return a.ExpiresAt.Sub(now) <= expiresSoonWindow
}

// SameTuple reports whether two assignments cover the same
// (role, scope, scope id) tuple.
func (a RoleAssignment) SameTuple(roleName string, scope Scope, scopeID string) bool {
	return a.RoleName == roleName && a.Scope == scope && a.ScopeID == scopeID
}

// PermissionGrant is one principal holding one direct, fine-grained
// permission. Conditions are opaque to the engine; the enforcement
// layer interprets them.
type PermissionGrant struct {
	ID             string
	PrincipalID    string
	PermissionName string
	ResourceType   ResourceType
	ResourceID     string
	Action         Action
	GrantedBy      string
	GrantedAt      time.Time
	ExpiresAt      *time.Time
	Conditions     map[string]any
	IsActive       bool
}

// Expired reports whether the grant has passed its expiry.
func (g PermissionGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}

// AppliesTo reports whether the grant covers the given resource
// instance. A grant without a resource ID covers the whole type.
func (g PermissionGrant) AppliesTo(resourceID string) bool {
	return g.ResourceID == "" || g.ResourceID == resourceID
}

// Source tells where an effective permission came from.
type Source string

const (
	SourceDirect    Source = "direct"
	SourceRole      Source = "role"
	SourceInherited Source = "inherited"
)

// EffectivePermission is one cell of the resolved matrix.
type EffectivePermission struct {
	Resource ResourceType
	Action   Action
	Allowed  bool
	Source   Source
	RoleName string
	Conflict bool
}

// Matrix is the resolved permission set for one principal over the full
// resource/action cross-product. It is derived, never persisted.
type Matrix struct {
	PrincipalID string
	Entries     []EffectivePermission
	Warnings    []string
}

// Lookup returns the matrix cell for the resource/action pair.
func (m Matrix) Lookup(rt ResourceType, act Action) (EffectivePermission, bool) {
	for _, entry := range m.Entries {
		if entry.Resource == rt && entry.Action == act {
			return entry, true
		}
	}
	return EffectivePermission{}, false
}

// Allowed reports whether the pair resolves to an allow.
func (m Matrix) Allowed(rt ResourceType, act Action) bool {
	entry, ok := m.Lookup(rt, act)
	return ok && entry.Allowed
}

// Actor identifies the caller of a mutation. System actors bypass the
// grantor hierarchy checks.
type Actor struct {
	ID     string
	System bool
}

// Permission names a resource/action pair.
type Permission struct {
	Resource ResourceType
	Action   Action
}

// criticalPermissions is the checklist MatrixValidator scores gaps
// against.
var criticalPermissions = []Permission{
	{ResourceProfile, ActionRead},
	{ResourceAccount, ActionRead},
}
