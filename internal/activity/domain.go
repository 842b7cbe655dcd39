package activity

import "time"

// Entry is one activity record emitted by a mutation.
type Entry struct {
	PrincipalID  string
	ActivityType string
	TargetType   string
	TargetID     string
	Description  string
	Metadata     map[string]any
	OccurredAt   time.Time
}

// Activity types recorded by the authorization engine.
const (
	TypeRoleAssigned      = "role_assigned"
	TypeRoleRevoked       = "role_revoked"
	TypePermissionGranted = "permission_granted"
	TypePermissionRevoked = "permission_revoked"
	TypeRoleExpiringSoon  = "role_expiring_soon"
)

// TimelineRow is a rendered activity record with the actor's display
// name resolved.
type TimelineRow struct {
	ID           string    `json:"id"`
	PrincipalID  string    `json:"principal_id"`
	ActivityType string    `json:"activity_type"`
	TargetType   string    `json:"target_type"`
	TargetID     string    `json:"target_id"`
	Description  string    `json:"description"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// TimelineFilters narrows a timeline query.
type TimelineFilters struct {
	PrincipalID  string
	ActivityType string
	From         time.Time
	To           time.Time
	Page         int
	PageSize     int
}

// PagingInfo describes the timeline result window.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}
