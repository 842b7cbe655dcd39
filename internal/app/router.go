package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	activityhttp "github.com/meridian-admin/meridian-admin/internal/activity/http"
	"github.com/meridian-admin/meridian-admin/internal/auth"
	"github.com/meridian-admin/meridian-admin/internal/authz"
	"github.com/meridian-admin/meridian-admin/internal/observability"
	"github.com/meridian-admin/meridian-admin/internal/platform/httpx"
	"github.com/meridian-admin/meridian-admin/internal/profiles"
	"github.com/meridian-admin/meridian-admin/internal/shared"
	"github.com/meridian-admin/meridian-admin/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	SessionManager  *shared.SessionManager
	CSRFManager     *shared.CSRFManager
	AuthHandler     *auth.Handler
	AuthzHandler    *authz.Handler
	ProfilesHandler *profiles.Handler
	ActivityHandler *activityhttp.Handler
	JobsHandler     *jobs.Handler
	Guard           authz.Middleware
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", func(r chi.Router) {
		params.AuthHandler.MountRoutes(r)
		if params.CSRFManager != nil {
			r.Get("/csrf", func(w http.ResponseWriter, r *http.Request) {
				sess := shared.SessionFromContext(r.Context())
				token, err := params.CSRFManager.EnsureToken(r.Context(), sess)
				if err != nil {
					httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
					return
				}
				httpx.JSON(w, http.StatusOK, map[string]any{"csrf_token": token})
			})
		}
	})

	r.Route("/api/admin", func(r chi.Router) {
		params.AuthzHandler.MountRoutes(r)
		r.Route("/profiles", params.ProfilesHandler.MountRoutes)
		r.Route("/activity", params.ActivityHandler.MountRoutes)
	})

	if params.JobsHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(params.Guard.RequireAny(
				authz.Permission{Resource: authz.ResourceSystem, Action: authz.ActionManage},
				authz.Permission{Resource: authz.ResourceSystem, Action: authz.ActionExecute},
			))
			params.JobsHandler.MountRoutes(r)
		})
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
