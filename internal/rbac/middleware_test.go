package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	granted map[string]bool
}

func (s stubChecker) HasAnyPermission(perms ...string) bool {
	for _, p := range perms {
		if s.granted[p] {
			return true
		}
	}
	return false
}

func (s stubChecker) HasAllPermissions(perms ...string) bool {
	for _, p := range perms {
		if !s.granted[p] {
			return false
		}
	}
	return true
}

func serve(t *testing.T, mw func(http.Handler) http.Handler) int {
	t.Helper()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/users", nil))
	return rr.Code
}

func TestRequireAny(t *testing.T) {
	m := Middleware{Checker: stubChecker{granted: map[string]bool{"view_users": true}}}

	require.Equal(t, http.StatusNoContent, serve(t, m.RequireAny("edit_users", "view_users")))
	require.Equal(t, http.StatusForbidden, serve(t, m.RequireAny("edit_users")))
	require.Equal(t, http.StatusNoContent, serve(t, m.RequireAny(" ", "")))
}

func TestRequireAll(t *testing.T) {
	m := Middleware{Checker: stubChecker{granted: map[string]bool{"view_users": true, "edit_users": true}}}

	require.Equal(t, http.StatusNoContent, serve(t, m.RequireAll("view_users", "edit_users")))
	require.Equal(t, http.StatusForbidden, serve(t, m.RequireAll("view_users", "delete_users")))
}

func TestRequireAnyWithoutChecker(t *testing.T) {
	require.Equal(t, http.StatusForbidden, serve(t, Middleware{}.RequireAny("view_users")))
}

func TestNormalizePermissionsKeepsOrder(t *testing.T) {
	require.Equal(t, []string{"b", "a"}, normalizePermissions([]string{" b", "a", "b", ""}))
}
