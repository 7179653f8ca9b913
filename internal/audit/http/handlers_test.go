package audithttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/inventory-portal/internal/audit"
	"github.com/odyssey-erp/inventory-portal/internal/platform/kv"
	"github.com/odyssey-erp/inventory-portal/internal/rbac"
)

type allowAll bool

func (a allowAll) HasAnyPermission(...string) bool  { return bool(a) }
func (a allowAll) HasAllPermissions(...string) bool { return bool(a) }

func newRouter(t *testing.T, allowed bool) (http.Handler, *audit.Service) {
	t.Helper()
	svc := audit.NewService(kv.NewMemoryStore(), "test", nil)
	h := NewHandler(nil, svc, rbac.Middleware{Checker: allowAll(allowed)})
	r := chi.NewRouter()
	r.Route("/audit", h.MountRoutes)
	return r, svc
}

func TestTimelineFiltersByUser(t *testing.T) {
	router, svc := newRouter(t, true)
	ctx := context.Background()
	require.NoError(t, svc.Record(ctx, "u1", audit.ActionLogin, ""))
	require.NoError(t, svc.Record(ctx, "u2", audit.ActionLogin, ""))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/?user=u2", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var result audit.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	require.Len(t, result.Rows, 1)
	require.Equal(t, "u2", result.Rows[0].UserID)
}

func TestExportRequiresPermission(t *testing.T) {
	router, _ := newRouter(t, false)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/export.json", nil))
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestExportSetsAttachment(t *testing.T) {
	router, _ := newRouter(t, true)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/export.json", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Disposition"), "user-activities.json")
}
