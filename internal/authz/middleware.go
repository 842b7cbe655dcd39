package authz

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/meridian-admin/meridian-admin/internal/shared"
)

// Middleware wires authorization checks for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Require ensures the current user holds the given permission before
// the wrapped handler runs.
func (m Middleware) Require(resource ResourceType, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principalID, ok := m.currentPrincipalID(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			allowed, err := m.Service.CheckPermission(r.Context(), principalID, resource, action, "")
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("authz require",
						slog.String("resource", string(resource)),
						slog.String("action", string(action)),
						slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !allowed {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAny passes when the current user holds at least one of the
// given resource/action pairs.
func (m Middleware) RequireAny(pairs ...Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(pairs) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principalID, ok := m.currentPrincipalID(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			for _, pair := range pairs {
				allowed, err := m.Service.CheckPermission(r.Context(), principalID, pair.Resource, pair.Action, "")
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error("authz require any", slog.Any("error", err))
					}
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				if allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

func (m Middleware) currentPrincipalID(r *http.Request) (string, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return "", false
	}
	id := strings.TrimSpace(sess.User())
	if id == "" {
		return "", false
	}
	return id, true
}
