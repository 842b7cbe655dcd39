package activityhttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-admin/meridian-admin/internal/activity"
	"github.com/meridian-admin/meridian-admin/internal/authz"
	"github.com/meridian-admin/meridian-admin/internal/platform/httpx"
)

// NameResolver maps principal IDs to display names for timeline
// rendering. Unresolvable IDs are simply absent from the result.
type NameResolver interface {
	DisplayNames(ctx context.Context, ids []string) (map[string]string, error)
}

// Handler exposes the activity timeline.
type Handler struct {
	logger  *slog.Logger
	service *activity.Service
	names   NameResolver
	guard   authz.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *activity.Service, names NameResolver, guard authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, names: names, guard: guard}
}

// MountRoutes registers timeline routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.ResourceReport, authz.ActionRead))
		r.Get("/", h.timeline)
	})
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	pageSize, _ := strconv.Atoi(query.Get("page_size"))

	filters := activity.TimelineFilters{
		PrincipalID:  query.Get("principal_id"),
		ActivityType: query.Get("type"),
		Page:         page,
		PageSize:     pageSize,
	}
	if raw := query.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be RFC3339")
			return
		}
		filters.From = from
	}
	if raw := query.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be RFC3339")
			return
		}
		filters.To = to
	}

	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("activity timeline failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"activities":      result.Rows,
		"paging":          result.Paging,
		"principal_names": h.principalNames(r.Context(), result.Rows),
	})
}

// principalNames enriches the page with display names. Lookup failures
// degrade to an empty map rather than failing the timeline.
func (h *Handler) principalNames(ctx context.Context, rows []activity.TimelineRow) map[string]string {
	if h.names == nil || len(rows) == 0 {
		return map[string]string{}
	}
	seen := make(map[string]struct{}, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if _, dup := seen[row.PrincipalID]; dup || row.PrincipalID == "" {
			continue
		}
		seen[row.PrincipalID] = struct{}{}
		ids = append(ids, row.PrincipalID)
	}
	names, err := h.names.DisplayNames(ctx, ids)
	if err != nil {
		h.logger.Warn("display name lookup failed", slog.Any("error", err))
		return map[string]string{}
	}
	return names
}
