// Package notify hosts a notification endpoint that speaks the realtime wire
// protocol. It greets connections, acknowledges AUTH frames and pushes
// messages to signed-in users.
package notify

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/odyssey-erp/inventory-portal/internal/realtime"
)

const (
	sendBuffer = 32
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// ErrClosed is returned after the hub shut down.
var ErrClosed = errors.New("notify: hub closed")

type peer struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	userID string
	once   sync.Once
}

func (p *peer) close() {
	p.once.Do(func() { close(p.send) })
}

// Hub tracks connected clients.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	peers  map[string]*peer
	closed bool
}

// NewHub builds an empty hub. allowedOrigins restricts browser origins; an
// empty list accepts any origin.
func NewHub(logger *slog.Logger, allowedOrigins ...string) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Hub{
		logger: logger.With(slog.String("component", "notify")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed[origin]
			},
		},
		peers: make(map[string]*peer),
	}
}

// ServeWS upgrades the request and serves the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	p := &peer{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}
	if err := h.register(p); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	go h.writePump(p)

	greeting, err := realtime.Encode(realtime.ConnectionEstablished{ClientID: p.id})
	if err == nil {
		h.enqueue(p, greeting)
	}
	h.readPump(p)
}

// Publish sends msg to every connection authenticated as userID, or to every
// connection when userID is empty. It returns the number of recipients.
func (h *Hub) Publish(userID string, msg realtime.Message) (int, error) {
	data, err := realtime.Encode(msg)
	if err != nil {
		return 0, err
	}
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return 0, ErrClosed
	}
	targets := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		if userID == "" || p.userID == userID {
			targets = append(targets, p)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, p := range targets {
		if h.enqueue(p, data) {
			delivered++
		}
	}
	return delivered, nil
}

// Clients returns the number of open connections.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Authenticated returns the number of connections bound to userID.
func (h *Hub) Authenticated(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, p := range h.peers {
		if p.userID == userID {
			n++
		}
	}
	return n
}

// Close disconnects every client with a normal closure.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	peers := h.peers
	h.peers = make(map[string]*peer)
	h.mu.Unlock()

	for _, p := range peers {
		_ = p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "hub closed"), time.Now().Add(writeWait))
		p.close()
		_ = p.conn.Close()
	}
}

func (h *Hub) register(p *peer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	h.peers[p.id] = p
	h.logger.Debug("client connected", slog.String("client_id", p.id))
	return nil
}

func (h *Hub) unregister(p *peer) {
	h.mu.Lock()
	if _, ok := h.peers[p.id]; ok {
		delete(h.peers, p.id)
		p.close()
	}
	h.mu.Unlock()
	_ = p.conn.Close()
	h.logger.Debug("client disconnected", slog.String("client_id", p.id))
}

// enqueue hands data to the peer's writer; slow peers are dropped.
func (h *Hub) enqueue(p *peer, data []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case p.send <- data:
		return true
	default:
		h.logger.Warn("client send buffer full, disconnecting", slog.String("client_id", p.id))
		go h.unregister(p)
		return false
	}
}

func (h *Hub) readPump(p *peer) {
	defer h.unregister(p)
	p.conn.SetReadLimit(64 << 10)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Info("client read", slog.String("client_id", p.id), slog.Any("error", err))
			}
			return
		}
		msg, err := realtime.Decode(data)
		if err != nil {
			h.logger.Warn("ignoring malformed frame", slog.String("client_id", p.id), slog.Any("error", err))
			continue
		}
		auth, ok := msg.(realtime.Auth)
		if !ok {
			h.logger.Debug("ignoring client frame", slog.String("type", string(msg.MessageType())))
			continue
		}
		if auth.UserID == "" {
			continue
		}
		h.mu.Lock()
		p.userID = auth.UserID
		h.mu.Unlock()
		h.logger.Info("client authenticated", slog.String("client_id", p.id), slog.String("user_id", auth.UserID), slog.String("role", auth.Role))
		if ack, err := realtime.Encode(realtime.AuthSuccess{UserID: auth.UserID}); err == nil {
			h.enqueue(p, ack)
		}
	}
}

func (h *Hub) writePump(p *peer) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("client write", slog.String("client_id", p.id), slog.Any("error", err))
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
