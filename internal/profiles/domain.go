package profiles

import "time"

// Profile represents an administrable account profile. Profiles are the
// principals that roles and permissions attach to.
type Profile struct {
	ID          string
	Email       string
	FullName    string
	AccountType string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SearchFilters narrows profile listings.
type SearchFilters struct {
	Query       string
	AccountType string
	ActiveOnly  bool
	Page        int
}
