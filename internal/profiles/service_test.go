package profiles

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-admin/meridian-admin/internal/platform/httpx"
)

type mockProfileRepo struct {
	profiles map[string]Profile
	created  []Profile
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{profiles: make(map[string]Profile)}
}

func (m *mockProfileRepo) Search(ctx context.Context, filters SearchFilters, offset, limit int32) ([]Profile, error) {
	var all []Profile
	for i := 0; i < len(m.profiles); i++ {
		id := fmt.Sprintf("p-%03d", i)
		if p, ok := m.profiles[id]; ok {
			all = append(all, p)
		}
	}
	if int(offset) >= len(all) {
		return nil, nil
	}
	end := int(offset + limit)
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *mockProfileRepo) Get(ctx context.Context, id string) (Profile, error) {
	p, ok := m.profiles[id]
	if !ok {
		return Profile{}, httpx.ErrNotFound
	}
	return p, nil
}

func (m *mockProfileRepo) Create(ctx context.Context, p Profile) (Profile, error) {
	for _, existing := range m.profiles {
		if existing.Email == p.Email {
			return Profile{}, httpx.ErrDuplicate
		}
	}
	p.ID = fmt.Sprintf("p-%03d", len(m.profiles))
	p.IsActive = true
	m.profiles[p.ID] = p
	m.created = append(m.created, p)
	return p, nil
}

func (m *mockProfileRepo) SetActive(ctx context.Context, id string, active bool) error {
	p, ok := m.profiles[id]
	if !ok {
		return httpx.ErrNotFound
	}
	p.IsActive = active
	m.profiles[id] = p
	return nil
}

func (m *mockProfileRepo) DisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, id := range ids {
		if p, ok := m.profiles[id]; ok {
			out[id] = p.FullName
		}
	}
	return out, nil
}

func seedProfiles(repo *mockProfileRepo, n int) {
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("p-%03d", i)
		repo.profiles[id] = Profile{
			ID:          id,
			Email:       fmt.Sprintf("user%d@example.com", i),
			FullName:    fmt.Sprintf("User %d", i),
			AccountType: "standard",
			IsActive:    true,
		}
	}
}

func TestCreateProfileNormalizesInput(t *testing.T) {
	repo := newMockProfileRepo()
	svc := NewService(repo)

	created, err := svc.Create(context.Background(), CreateInput{
		Email:    "  Jamie.Lee@Example.COM ",
		FullName: "  Jamie Lee  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "jamie.lee@example.com", created.Email)
	assert.Equal(t, "Jamie Lee", created.FullName)
	assert.Equal(t, "standard", created.AccountType)
}

func TestCreateProfileValidation(t *testing.T) {
	svc := NewService(newMockProfileRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Email: "", FullName: "Jamie"})
	assert.True(t, errors.Is(err, httpx.ErrValidation))

	_, err = svc.Create(ctx, CreateInput{Email: "not-an-email", FullName: "Jamie"})
	assert.True(t, errors.Is(err, httpx.ErrValidation))

	_, err = svc.Create(ctx, CreateInput{Email: "jamie@example.com", FullName: "   "})
	assert.True(t, errors.Is(err, httpx.ErrValidation))
}

func TestCreateProfileDuplicateEmail(t *testing.T) {
	repo := newMockProfileRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Email: "jamie@example.com", FullName: "Jamie"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateInput{Email: "JAMIE@example.com", FullName: "Other"})
	assert.True(t, errors.Is(err, httpx.ErrDuplicate))
}

func TestSearchPaging(t *testing.T) {
	repo := newMockProfileRepo()
	seedProfiles(repo, 30)
	svc := NewService(repo)
	ctx := context.Background()

	first, err := svc.Search(ctx, SearchFilters{})
	require.NoError(t, err)
	assert.Len(t, first.Profiles, 25)
	assert.Equal(t, 1, first.Page)
	assert.True(t, first.HasNext)

	second, err := svc.Search(ctx, SearchFilters{Page: 2})
	require.NoError(t, err)
	assert.Len(t, second.Profiles, 5)
	assert.False(t, second.HasNext)
}

func TestDeactivateReactivate(t *testing.T) {
	repo := newMockProfileRepo()
	seedProfiles(repo, 1)
	svc := NewService(repo)
	ctx := context.Background()

	require.NoError(t, svc.Deactivate(ctx, "p-000"))
	p, err := svc.Get(ctx, "p-000")
	require.NoError(t, err)
	assert.False(t, p.IsActive)

	require.NoError(t, svc.Reactivate(ctx, "p-000"))
	p, err = svc.Get(ctx, "p-000")
	require.NoError(t, err)
	assert.True(t, p.IsActive)

	assert.True(t, errors.Is(svc.Deactivate(ctx, "missing"), httpx.ErrNotFound))
}

func TestDisplayNamesSkipsUnknownIDs(t *testing.T) {
	repo := newMockProfileRepo()
	seedProfiles(repo, 2)
	svc := NewService(repo)

	names, err := svc.DisplayNames(context.Background(), []string{"p-000", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"p-000": "User 0"}, names)
}
