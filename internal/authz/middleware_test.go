package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridian-admin/meridian-admin/internal/shared"
)

func guardRequest(t *testing.T, h http.Handler, principalID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	if principalID != "" {
		sess := &shared.Session{}
		sess.SetUser(principalID)
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireAllowsPermittedPrincipal(t *testing.T) {
	svc, assignments, _ := newServiceFixture(t)
	assignments.items["a1"] = activeAssignment("p-1", "analyst")
	guard := Middleware{Service: svc}

	h := guard.Require(ResourceReport, ActionRead)(okHandler())
	rec := guardRequest(t, h, "p-1")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireDeniesMissingPermission(t *testing.T) {
	svc, assignments, _ := newServiceFixture(t)
	assignments.items["a1"] = activeAssignment("p-1", "viewer")
	guard := Middleware{Service: svc}

	h := guard.Require(ResourceSystem, ActionManage)(okHandler())
	rec := guardRequest(t, h, "p-1")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireDeniesWithoutSession(t *testing.T) {
	svc, _, _ := newServiceFixture(t)
	guard := Middleware{Service: svc}

	h := guard.Require(ResourceReport, ActionRead)(okHandler())
	rec := guardRequest(t, h, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAnyPassesOnSecondPair(t *testing.T) {
	svc, assignments, _ := newServiceFixture(t)
	assignments.items["a1"] = activeAssignment("p-1", "analyst")
	guard := Middleware{Service: svc}

	h := guard.RequireAny(
		Permission{Resource: ResourceSystem, Action: ActionManage},
		Permission{Resource: ResourceReport, Action: ActionRead},
	)(okHandler())
	rec := guardRequest(t, h, "p-1")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireAnyDeniesWhenNoPairHeld(t *testing.T) {
	svc, assignments, _ := newServiceFixture(t)
	assignments.items["a1"] = activeAssignment("p-1", "viewer")
	guard := Middleware{Service: svc}

	h := guard.RequireAny(
		Permission{Resource: ResourceSystem, Action: ActionManage},
		Permission{Resource: ResourceSystem, Action: ActionExecute},
	)(okHandler())
	rec := guardRequest(t, h, "p-1")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
