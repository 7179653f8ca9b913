package notify

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/odyssey-erp/inventory-portal/internal/platform/httpx"
	"github.com/odyssey-erp/inventory-portal/internal/realtime"
)

const maxPublishBytes = 64 << 10

// Handler exposes the hub over HTTP.
type Handler struct {
	logger *slog.Logger
	hub    *Hub
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, hub *Hub) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, hub: hub}
}

// MountRoutes registers the websocket endpoint and the publish API.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ws", h.hub.ServeWS)
	r.Post("/publish", h.handlePublish)
	r.Get("/stats", h.handleStats)
}

type publishResponse struct {
	Type      realtime.MessageType `json:"type"`
	Delivered int                  `json:"delivered"`
}

// handlePublish accepts any wire message. AUTH_UPDATE goes to its userId;
// everything else is broadcast.
func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	r.Body = http.MaxBytesReader(w, r.Body, maxPublishBytes)
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "Body must be a JSON message")
		return
	}
	msg, err := realtime.Decode(raw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	target := ""
	if update, ok := msg.(realtime.AuthUpdate); ok {
		if update.Action != realtime.ActionSessionExpired && update.Action != realtime.ActionPermissionsUpdated {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "Unknown AUTH_UPDATE action")
			return
		}
		target = update.UserID
	}
	delivered, err := h.hub.Publish(target, msg)
	if err != nil {
		h.logger.Error("publish", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", err.Error())
		return
	}
	h.logger.Info("published", slog.String("type", string(msg.MessageType())), slog.String("user_id", target), slog.Int("delivered", delivered))
	httpx.JSON(w, http.StatusAccepted, publishResponse{Type: msg.MessageType(), Delivered: delivered})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]int{"clients": h.hub.Clients()})
}
