package profiles

import (
	"context"
	"fmt"
	"strings"

	"github.com/meridian-admin/meridian-admin/internal/platform/httpx"
)

const pageSize = 25

// RepositoryPort defines data access methods for profiles.
type RepositoryPort interface {
	Search(ctx context.Context, filters SearchFilters, offset, limit int32) ([]Profile, error)
	Get(ctx context.Context, id string) (Profile, error)
	Create(ctx context.Context, p Profile) (Profile, error)
	SetActive(ctx context.Context, id string, active bool) error
	DisplayNames(ctx context.Context, ids []string) (map[string]string, error)
}

// Service handles profile business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// SearchResult carries one page of profiles and a next-page indicator.
type SearchResult struct {
	Profiles []Profile
	Page     int
	HasNext  bool
}

// Search returns one page of matching profiles.
func (s *Service) Search(ctx context.Context, filters SearchFilters) (SearchResult, error) {
	page := filters.Page
	if page < 1 {
		page = 1
	}
	offset := int32(page-1) * pageSize

	// Fetch one extra row to detect whether another page exists.
	rows, err := s.repo.Search(ctx, filters, offset, pageSize+1)
	if err != nil {
		return SearchResult{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	return SearchResult{Profiles: rows, Page: page, HasNext: hasNext}, nil
}

// Get fetches one profile.
func (s *Service) Get(ctx context.Context, id string) (Profile, error) {
	return s.repo.Get(ctx, id)
}

// CreateInput carries the fields for a new profile.
type CreateInput struct {
	Email       string
	FullName    string
	AccountType string
}

// Create validates and stores a new profile.
func (s *Service) Create(ctx context.Context, input CreateInput) (Profile, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	name := strings.TrimSpace(input.FullName)
	if email == "" || !strings.Contains(email, "@") {
		return Profile{}, fmt.Errorf("email is required: %w", httpx.ErrValidation)
	}
	if name == "" {
		return Profile{}, fmt.Errorf("full name is required: %w", httpx.ErrValidation)
	}
	accountType := strings.TrimSpace(input.AccountType)
	if accountType == "" {
		accountType = "standard"
	}
	return s.repo.Create(ctx, Profile{Email: email, FullName: name, AccountType: accountType})
}

// Deactivate disables a profile without removing its role history.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	return s.repo.SetActive(ctx, id, false)
}

// Reactivate re-enables a previously disabled profile.
func (s *Service) Reactivate(ctx context.Context, id string) error {
	return s.repo.SetActive(ctx, id, true)
}

// DisplayNames resolves full names for timeline rendering.
func (s *Service) DisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	return s.repo.DisplayNames(ctx, ids)
}
