package auth

import "time"

// Credential is the login-facing slice of a profile.
type Credential struct {
	ProfileID    string
	Email        string
	FullName     string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
