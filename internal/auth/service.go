package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-admin/meridian-admin/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials. All failure modes
// collapse into ErrInvalidCredentials so callers leak nothing about
// which part failed.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Credential, error) {
	cred, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !cred.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return cred, nil
}

// RegisterSession persists the session metadata for auditing.
func (s *Service) RegisterSession(ctx context.Context, id, profileID string, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, profileID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
