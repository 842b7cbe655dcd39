package authz

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-admin/meridian-admin/internal/platform/httpx"
	"github.com/meridian-admin/meridian-admin/internal/shared"
)

// Handler wires the authorization admin endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		guard:     guard,
		validator: validator.New(),
	}
}

// MountRoutes registers the authorization routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(ResourceProfile, ActionRead))
		r.Get("/roles/definitions", h.listRoleDefinitions)
		r.Route("/principals/{principalID}", func(r chi.Router) {
			r.Get("/roles", h.listRoles)
			r.Get("/permissions", h.listGrants)
			r.Get("/permissions/effective", h.effectivePermissions)
			r.Get("/permissions/validation", h.validatePermissions)
			r.Get("/permissions/check", h.checkPermission)
		})
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(ResourceProfile, ActionUpdate))
		r.Route("/principals/{principalID}", func(r chi.Router) {
			r.Post("/roles", h.assignRole)
			r.Post("/roles/{assignmentID}/revoke", h.revokeRole)
			r.Post("/permissions", h.grantPermission)
			r.Post("/permissions/{grantID}/revoke", h.revokePermission)
		})
	})
}

type roleDefinitionView struct {
	RoleName       string   `json:"role_name"`
	DisplayName    string   `json:"display_name"`
	Description    string   `json:"description"`
	HierarchyLevel int      `json:"hierarchy_level"`
	DefaultRules   []string `json:"default_rules"`
	AssignableRoles []string `json:"assignable_roles"`
	MaxScope       string   `json:"max_scope"`
	IsSystemRole   bool     `json:"is_system_role"`
}

func (h *Handler) listRoleDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := h.service.ListRoleDefinitions(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	views := make([]roleDefinitionView, 0, len(defs))
	for _, def := range defs {
		rules := make([]string, 0, len(def.DefaultRules))
		for _, rule := range def.DefaultRules {
			rules = append(rules, rule.String())
		}
		views = append(views, roleDefinitionView{
			RoleName:        def.RoleName,
			DisplayName:     def.DisplayName,
			Description:     def.Description,
			HierarchyLevel:  def.HierarchyLevel,
			DefaultRules:    rules,
			AssignableRoles: def.AssignableRoles,
			MaxScope:        string(def.MaxScope),
			IsSystemRole:    def.IsSystemRole,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"definitions": views})
}

type assignmentView struct {
	ID          string     `json:"id"`
	RoleName    string     `json:"role_name"`
	Scope       string     `json:"scope"`
	ScopeID     string     `json:"scope_id,omitempty"`
	GrantedBy   string     `json:"granted_by,omitempty"`
	GrantedAt   time.Time  `json:"granted_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IsExpired   bool       `json:"is_expired"`
	ExpiresSoon bool       `json:"expires_soon"`
	IsActive    bool       `json:"is_active"`
	Notes       string     `json:"notes,omitempty"`
}

func assignmentToView(a RoleAssignment, now time.Time) assignmentView {
	return assignmentView{
		ID:          a.ID,
		RoleName:    a.RoleName,
		Scope:       string(a.Scope),
		ScopeID:     a.ScopeID,
		GrantedBy:   a.GrantedBy,
		GrantedAt:   a.GrantedAt,
		ExpiresAt:   a.ExpiresAt,
		IsExpired:   a.Expired(now),
		ExpiresSoon: a.ExpiresSoon(now),
		IsActive:    a.IsActive,
		Notes:       a.Notes,
	}
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	principalID := chi.URLParam(r, "principalID")
	assignments, err := h.service.ListRoleAssignments(r.Context(), principalID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	now := time.Now()
	views := make([]assignmentView, 0, len(assignments))
	for _, a := range assignments {
		views = append(views, assignmentToView(a, now))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": views})
}

type grantView struct {
	ID             string         `json:"id"`
	PermissionName string         `json:"permission_name"`
	ResourceType   string         `json:"resource_type"`
	ResourceID     string         `json:"resource_id,omitempty"`
	Action         string         `json:"action"`
	GrantedBy      string         `json:"granted_by,omitempty"`
	GrantedAt      time.Time      `json:"granted_at"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	IsExpired      bool           `json:"is_expired"`
	Conditions     map[string]any `json:"conditions,omitempty"`
	IsActive       bool           `json:"is_active"`
}

func grantToView(g PermissionGrant, now time.Time) grantView {
	return grantView{
		ID:             g.ID,
		PermissionName: g.PermissionName,
		ResourceType:   string(g.ResourceType),
		ResourceID:     g.ResourceID,
		Action:         string(g.Action),
		GrantedBy:      g.GrantedBy,
		GrantedAt:      g.GrantedAt,
		ExpiresAt:      g.ExpiresAt,
		IsExpired:      g.Expired(now),
		Conditions:     g.Conditions,
		IsActive:       g.IsActive,
	}
}

func (h *Handler) listGrants(w http.ResponseWriter, r *http.Request) {
	principalID := chi.URLParam(r, "principalID")
	grants, err := h.service.ListPermissionGrants(r.Context(), principalID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	now := time.Now()
	views := make([]grantView, 0, len(grants))
	for _, g := range grants {
		views = append(views, grantToView(g, now))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": views})
}

type matrixEntryView struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Allowed  bool   `json:"allowed"`
	Source   string `json:"source,omitempty"`
	RoleName string `json:"role_name,omitempty"`
	Conflict bool   `json:"conflict"`
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	principalID := chi.URLParam(r, "principalID")
	matrix, err := h.service.ResolveEffectivePermissions(r.Context(), principalID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	entries := make([]matrixEntryView, 0, len(matrix.Entries))
	for _, entry := range matrix.Entries {
		entries = append(entries, matrixEntryView{
			Resource: string(entry.Resource),
			Action:   string(entry.Action),
			Allowed:  entry.Allowed,
			Source:   string(entry.Source),
			RoleName: entry.RoleName,
			Conflict: entry.Conflict,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"principal_id": matrix.PrincipalID,
		"entries":      entries,
		"warnings":     matrix.Warnings,
	})
}

func (h *Handler) validatePermissions(w http.ResponseWriter, r *http.Request) {
	principalID := chi.URLParam(r, "principalID")
	report, err := h.service.ValidatePermissions(r.Context(), principalID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	principalID := chi.URLParam(r, "principalID")
	query := r.URL.Query()
	allowed, err := h.service.CheckPermission(
		r.Context(),
		principalID,
		ResourceType(query.Get("resource")),
		Action(query.Get("action")),
		query.Get("resource_id"),
	)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"allowed": allowed})
}

type assignRoleRequest struct {
	RoleName  string     `json:"role_name" validate:"required,max=64"`
	Scope     string     `json:"scope" validate:"omitempty,oneof=global account tool client project"`
	ScopeID   string     `json:"scope_id" validate:"omitempty,max=128"`
	ExpiresAt *time.Time `json:"expires_at"`
	Notes     string     `json:"notes" validate:"omitempty,max=500"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.currentActor(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.AssignRole(r.Context(), actor, chi.URLParam(r, "principalID"), AssignRoleRequest{
		RoleName:  req.RoleName,
		Scope:     Scope(req.Scope),
		ScopeID:   req.ScopeID,
		ExpiresAt: req.ExpiresAt,
		Notes:     req.Notes,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"role":     assignmentToView(result.Assignment, time.Now()),
		"warnings": result.Warnings,
	})
}

type revokeRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.currentActor(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return
	}
	var req revokeRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
			return
		}
	}
	result, err := h.service.RevokeRole(r.Context(), actor, chi.URLParam(r, "assignmentID"), req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"revoked":  result.Revoked,
		"warnings": result.Warnings,
	})
}

type grantPermissionRequest struct {
	PermissionName string         `json:"permission_name" validate:"required,max=128"`
	ResourceType   string         `json:"resource_type" validate:"required"`
	Action         string         `json:"action" validate:"required"`
	ResourceID     string         `json:"resource_id" validate:"omitempty,max=128"`
	ExpiresAt      *time.Time     `json:"expires_at"`
	Conditions     map[string]any `json:"conditions"`
}

func (h *Handler) grantPermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.currentActor(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return
	}
	var req grantPermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.GrantPermission(r.Context(), actor, chi.URLParam(r, "principalID"), GrantPermissionRequest{
		PermissionName: req.PermissionName,
		ResourceType:   ResourceType(req.ResourceType),
		Action:         Action(req.Action),
		ResourceID:     req.ResourceID,
		ExpiresAt:      req.ExpiresAt,
		Conditions:     req.Conditions,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"permission": grantToView(result.Grant, time.Now()),
		"warnings":   result.Warnings,
	})
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.currentActor(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return
	}
	var req revokeRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
			return
		}
	}
	result, err := h.service.RevokePermission(r.Context(), actor, chi.URLParam(r, "grantID"), req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"revoked":  result.Revoked,
		"warnings": result.Warnings,
	})
}

func (h *Handler) currentActor(r *http.Request) (Actor, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		return Actor{}, false
	}
	return Actor{ID: sess.User()}, true
}

// respondError maps the rejection taxonomy onto distinct problem
// responses so clients can present per-kind messages.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrUnknownRole):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unknown Role", err.Error())
	case errors.Is(err, ErrDuplicateAssignment):
		httpx.Problem(w, http.StatusConflict, "Duplicate Assignment", err.Error())
	case errors.Is(err, ErrHierarchyViolation):
		httpx.Problem(w, http.StatusForbidden, "Hierarchy Violation", err.Error())
	case errors.Is(err, ErrSelfEscalationDenied):
		httpx.Problem(w, http.StatusForbidden, "Self-Escalation Denied", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("authz request failed",
				slog.String("path", r.URL.Path),
				slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
