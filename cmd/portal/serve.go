package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/inventory-portal/internal/app"
)

var (
	serveAddr       string
	serveNoRealtime bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the portal API and realtime client",
	Long: `Start the portal HTTP API. The realtime client connects to REALTIME_URL
and authenticates whenever a user signs in.

Examples:
  portal serve
  portal serve --addr :9000
  STORE_DRIVER=redis REDIS_ADDR=127.0.0.1:6379 portal serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides APP_ADDR)")
	serveCmd.Flags().BoolVar(&serveNoRealtime, "no-realtime", false, "Do not connect the realtime client on startup")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return err
	}
	if serveAddr != "" {
		cfg.AppAddr = serveAddr
	}
	logger := app.NewLogger(cfg)

	portal, err := app.NewPortal(ctx, cfg, logger)
	if err != nil {
		logger.Error("build portal", slog.Any("error", err))
		return err
	}
	defer portal.Close()

	if !serveNoRealtime {
		portal.Realtime.Connect()
	}

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      app.NewRouter(portal.Handlers()),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}
	return runServer(ctx, logger, server)
}

// runServer serves until ctx is cancelled, then shuts down gracefully.
func runServer(ctx context.Context, logger *slog.Logger, server *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", slog.String("addr", server.Addr))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("http server", slog.Any("error", err))
		return err
	}
	return nil
}
