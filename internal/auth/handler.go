package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/inventory-portal/internal/platform/httpx"
	"github.com/odyssey-erp/inventory-portal/internal/rbac"
	"github.com/odyssey-erp/inventory-portal/internal/shared"
	"github.com/odyssey-erp/inventory-portal/internal/users"
)

// Handler wires the JSON endpoints used by the portal UI.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers auth, user administration and profile routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)
		r.Post("/register", h.handleRegister)
		r.Get("/email-exists", h.handleEmailExists)
		r.Get("/session", h.handleSession)
		r.Get("/permissions", h.handlePermissions)
	})
	r.Route("/users", func(r chi.Router) {
		r.With(h.rbac.RequireAny(shared.PermUsersView)).Get("/", h.handleListUsers)
		r.Post("/", h.handleCreateUser)
		r.Patch("/{id}", h.handleUpdateUser)
		r.Delete("/{id}", h.handleDeleteUser)
	})
	r.Patch("/profile/{id}", h.handleUpdateProfile)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "Malformed login payload")
		return
	}
	var expected rbac.Role
	if strings.TrimSpace(req.Role) != "" {
		role, err := rbac.ParseRole(req.Role)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
			return
		}
		expected = role
	}
	session, err := h.service.Login(r.Context(), req.Email, req.Password, expected)
	if err != nil {
		h.logger.Info("login rejected", slog.String("email", req.Email), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context()); err != nil {
		h.logger.Warn("logout", slog.Any("error", err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var draft users.Draft
	if err := httpx.DecodeJSON(r, &draft); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "Malformed registration payload")
		return
	}
	account, err := h.service.Register(r.Context(), draft)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) handleEmailExists(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "email is required")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"exists": h.service.EmailExists(r.Context(), email)})
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.service.Session()
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Not signed in")
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

type permissionsResponse struct {
	Role           rbac.Role `json:"role"`
	Label          string    `json:"label"`
	Permissions    []string  `json:"permissions"`
	Pushed         []string  `json:"sessionPermissions"`
	CanManageUsers bool      `json:"canManageUsers"`
}

func (h *Handler) handlePermissions(w http.ResponseWriter, r *http.Request) {
	session, ok := h.service.Session()
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Not signed in")
		return
	}
	httpx.JSON(w, http.StatusOK, permissionsResponse{
		Role:           session.Role,
		Label:          session.Role.Label(),
		Permissions:    h.service.table.Permissions(session.Role),
		Pushed:         session.Permissions,
		CanManageUsers: h.service.HasAnyPermission(shared.CoreScopes()...),
	})
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListUsers(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var draft users.Draft
	if err := httpx.DecodeJSON(r, &draft); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "Malformed account payload")
		return
	}
	account, err := h.service.CreateUser(r.Context(), draft)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var update users.AdminUpdate
	if err := httpx.DecodeJSON(r, &update); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "Malformed account payload")
		return
	}
	account, err := h.service.UpdateUser(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, ok := h.service.Session()
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Not signed in")
		return
	}
	if session.UserID != id && !h.service.HasPermission(shared.PermUsersEdit) {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var update users.ProfileUpdate
	if err := httpx.DecodeJSON(r, &update); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "Malformed profile payload")
		return
	}
	account, err := h.service.UpdateProfile(r.Context(), id, update)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}
