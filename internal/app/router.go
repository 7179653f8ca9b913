package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/odyssey-erp/inventory-portal/internal/audit/http"
	"github.com/odyssey-erp/inventory-portal/internal/auth"
	"github.com/odyssey-erp/inventory-portal/internal/observability"
	"github.com/odyssey-erp/inventory-portal/internal/platform/httpx"
	"github.com/odyssey-erp/inventory-portal/internal/rbac"
	"github.com/odyssey-erp/inventory-portal/internal/realtime"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthHandler        *auth.Handler
	AuditHandler       *audithttp.Handler
	PermissionsHandler *rbac.PermissionsHandler
	Metrics            *observability.Metrics
	Realtime           *realtime.Client
}

// NewRouter constructs the chi.Router with portal defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Realtime != nil {
		r.Get("/realtime", func(w http.ResponseWriter, r *http.Request) {
			httpx.JSON(w, http.StatusOK, map[string]any{
				"state":     params.Realtime.State().String(),
				"attempts":  params.Realtime.Attempts(),
				"exhausted": params.Realtime.Exhausted(),
				"queued":    params.Realtime.QueueLen(),
			})
		})
		r.Post("/realtime/connect", func(w http.ResponseWriter, r *http.Request) {
			params.Realtime.Connect()
			w.WriteHeader(http.StatusAccepted)
		})
	}

	if params.AuthHandler != nil {
		params.AuthHandler.MountRoutes(r)
	}
	if params.AuditHandler != nil {
		r.Route("/activities", params.AuditHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
