package activity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Repository provides the timeline queries the service needs.
type Repository interface {
	TimelineWindow(ctx context.Context, arg TimelineWindowParams) ([]TimelineRow, error)
}

// TimelineWindowParams carries a filtered, paged timeline query.
type TimelineWindowParams struct {
	PrincipalID  pgtype.Text
	ActivityType pgtype.Text
	FromAt       pgtype.Timestamptz
	ToAt         pgtype.Timestamptz
	OffsetRows   int32
	LimitRows    int32
}

// Result wraps timeline rows with paging information.
type Result struct {
	Rows   []TimelineRow
	Paging PagingInfo
}

// Service coordinates activity timeline reads.
type Service struct {
	repo Repository
}

// NewService builds a timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline fetches activity records with paging. One extra row is
// requested to decide whether a next page exists.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("activity: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.TimelineWindow(ctx, TimelineWindowParams{
		PrincipalID:  optionalText(filters.PrincipalID),
		ActivityType: optionalText(filters.ActivityType),
		FromAt:       toPgTime(filters.From),
		ToAt:         toPgTime(filters.To),
		OffsetRows:   int32(offset),
		LimitRows:    int32(pageSize + 1),
	})
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
