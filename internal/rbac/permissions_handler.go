package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/inventory-portal/internal/platform/httpx"
)

// PermissionsHandler exposes the role permission table.
type PermissionsHandler struct {
	table *Table
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(table *Table) *PermissionsHandler {
	return &PermissionsHandler{table: table}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.listRoles)
	r.Get("/{role}", h.showRole)
}

func (h *PermissionsHandler) listRoles(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.table.Snapshot())
}

func (h *PermissionsHandler) showRole(w http.ResponseWriter, r *http.Request) {
	role, err := ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role":        role,
		"label":       role.Label(),
		"permissions": h.table.Permissions(role),
	})
}
