package activity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTimelineRepo struct {
	rows     []TimelineRow
	lastArgs TimelineWindowParams
}

func (m *mockTimelineRepo) TimelineWindow(ctx context.Context, arg TimelineWindowParams) ([]TimelineRow, error) {
	m.lastArgs = arg
	limit := int(arg.LimitRows)
	offset := int(arg.OffsetRows)
	if offset >= len(m.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.rows) {
		end = len(m.rows)
	}
	return m.rows[offset:end], nil
}

func makeRows(n int) []TimelineRow {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]TimelineRow, n)
	for i := range rows {
		rows[i] = TimelineRow{
			ID:           string(rune('a' + i)),
			PrincipalID:  "p-1",
			ActivityType: TypeRoleAssigned,
			OccurredAt:   base.Add(time.Duration(i) * time.Hour),
		}
	}
	return rows
}

func TestTimelineDefaultPaging(t *testing.T) {
	repo := &mockTimelineRepo{rows: makeRows(25)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)

	assert.Len(t, result.Rows, 20)
	assert.Equal(t, 1, result.Paging.Page)
	assert.Equal(t, 20, result.Paging.PageSize)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)
	assert.Zero(t, result.Paging.PrevPage)
	// One extra row is fetched to probe for a next page.
	assert.Equal(t, int32(21), repo.lastArgs.LimitRows)
}

func TestTimelineSecondPage(t *testing.T) {
	repo := &mockTimelineRepo{rows: makeRows(25)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 2})
	require.NoError(t, err)

	assert.Len(t, result.Rows, 5)
	assert.False(t, result.Paging.HasNext)
	assert.Equal(t, 1, result.Paging.PrevPage)
	assert.Zero(t, result.Paging.NextPage)
	assert.Equal(t, int32(20), repo.lastArgs.OffsetRows)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &mockTimelineRepo{rows: makeRows(60)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 50)
	assert.Equal(t, 50, result.Paging.PageSize)

	result, err = svc.Timeline(context.Background(), TimelineFilters{PageSize: -3})
	require.NoError(t, err)
	assert.Equal(t, 20, result.Paging.PageSize)
}

func TestTimelineFilterEncoding(t *testing.T) {
	repo := &mockTimelineRepo{}
	svc := NewService(repo)
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.Timeline(context.Background(), TimelineFilters{
		PrincipalID:  "  p-1  ",
		ActivityType: TypeRoleRevoked,
		From:         from,
	})
	require.NoError(t, err)

	assert.True(t, repo.lastArgs.PrincipalID.Valid)
	assert.Equal(t, "p-1", repo.lastArgs.PrincipalID.String)
	assert.True(t, repo.lastArgs.ActivityType.Valid)
	assert.True(t, repo.lastArgs.FromAt.Valid)
	// Unset bounds stay NULL so the SQL filter skips them.
	assert.False(t, repo.lastArgs.ToAt.Valid)
}
