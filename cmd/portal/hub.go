package main

import (
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/inventory-portal/internal/app"
	"github.com/odyssey-erp/inventory-portal/internal/notify"
)

var hubAddr string

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Run a development notification endpoint",
	Long: `Start a websocket endpoint that speaks the portal realtime protocol.

Clients connect to /ws, receive CONNECTION_ESTABLISHED and get AUTH_SUCCESS
after sending AUTH. POST /publish pushes a message: AUTH_UPDATE goes to the
addressed user, anything else is broadcast.

Examples:
  portal hub --addr :8090
  curl -XPOST localhost:8090/publish -d '{"type":"AUTH_UPDATE","userId":"<id>","action":"SESSION_EXPIRED"}'`,
	RunE: runHub,
}

func init() {
	hubCmd.Flags().StringVar(&hubAddr, "addr", "", "Listen address (overrides HUB_ADDR)")
}

func runHub(cmd *cobra.Command, _ []string) error {
	if app.InTestMode() {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return err
	}
	if hubAddr != "" {
		cfg.HubAddr = hubAddr
	}
	logger := app.NewLogger(cfg)

	hub := notify.NewHub(logger, cfg.HubAllowedOrigins...)
	defer hub.Close()

	r := chi.NewRouter()
	r.Use(chimw.RealIP, chimw.RequestID, chimw.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	notify.NewHandler(logger, hub).MountRoutes(r)

	return runServer(ctx, logger, &http.Server{Addr: cfg.HubAddr, Handler: r, ReadHeaderTimeout: cfg.AppReadTimeout})
}
