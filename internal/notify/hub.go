package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub is a websocket fan-out for the admin live feed. It implements
// Channel, so sweep reports and compliance events show up in real time
// for connected dashboards.
type Hub struct {
	mu             sync.Mutex
	conns          map[*websocket.Conn]struct{}
	logger         *slog.Logger
	allowedOrigins []string
}

// NewHub creates an empty hub
func NewHub(allowedOrigins []string, logger *slog.Logger) *Hub {
	return &Hub{
		conns:          map[*websocket.Conn]struct{}{},
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
}

func (h *Hub) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// ServeHTTP upgrades the connection and keeps it registered until the
// client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := h.upgrader()
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	h.conns[ws] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("notification feed client connected")

	// Drain reads so pings and close frames are processed; the feed is
	// write-only from the server side.
	go func() {
		defer h.drop(ws)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) drop(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, ws)
	h.mu.Unlock()
	ws.Close()
}

// Notify broadcasts the event to every connected client. A slow client is
// dropped rather than allowed to block the rest.
func (h *Hub) Notify(_ context.Context, event string, data any) {
	msg, err := json.Marshal(map[string]any{
		"event":     event,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		h.logger.Error("marshal feed event", slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	targets := make([]*websocket.Conn, 0, len(h.conns))
	for ws := range h.conns {
		targets = append(targets, ws)
	}
	h.mu.Unlock()

	for _, ws := range targets {
		ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Warn("dropping slow feed client", slog.String("error", err.Error()))
			h.drop(ws)
		}
	}
}
