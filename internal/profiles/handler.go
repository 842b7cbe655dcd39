package profiles

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-admin/meridian-admin/internal/authz"
	"github.com/meridian-admin/meridian-admin/internal/platform/httpx"
)

// Handler manages profile administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     authz.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		guard:     guard,
		validator: validator.New(),
	}
}

// MountRoutes registers profile routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.ResourceProfile, authz.ActionRead))
		r.Get("/", h.search)
		r.Get("/{profileID}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.ResourceProfile, authz.ActionCreate))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.ResourceProfile, authz.ActionUpdate))
		r.Post("/{profileID}/deactivate", h.deactivate)
		r.Post("/{profileID}/reactivate", h.reactivate)
	})
}

type profileView struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	FullName    string    `json:"full_name"`
	AccountType string    `json:"account_type"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toView(p Profile) profileView {
	return profileView{
		ID:          p.ID,
		Email:       p.Email,
		FullName:    p.FullName,
		AccountType: p.AccountType,
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	result, err := h.service.Search(r.Context(), SearchFilters{
		Query:       query.Get("q"),
		AccountType: query.Get("account_type"),
		ActiveOnly:  query.Get("active") == "true",
		Page:        page,
	})
	if err != nil {
		h.logger.Error("search profiles failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]profileView, 0, len(result.Profiles))
	for _, p := range result.Profiles {
		views = append(views, toView(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"profiles": views,
		"page":     result.Page,
		"has_next": result.HasNext,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.Get(r.Context(), chi.URLParam(r, "profileID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(profile))
}

type createRequest struct {
	Email       string `json:"email" validate:"required,email"`
	FullName    string `json:"full_name" validate:"required,max=200"`
	AccountType string `json:"account_type" validate:"omitempty,oneof=standard manager administrator"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	profile, err := h.service.Create(r.Context(), CreateInput{
		Email:       req.Email,
		FullName:    req.FullName,
		AccountType: req.AccountType,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toView(profile))
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Deactivate(r.Context(), chi.URLParam(r, "profileID")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deactivated": true})
}

func (h *Handler) reactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reactivate(r.Context(), chi.URLParam(r, "profileID")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reactivated": true})
}
