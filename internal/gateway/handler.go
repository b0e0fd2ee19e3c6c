package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Handler upgrades HTTP requests to WebSocket connections and wires them
// into the registry and relay.
type Handler struct {
	registry *Registry
	relay    *Relay
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler.
func NewHandler(registry *Registry, relay *Relay) *Handler {
	config := registry.config
	return &Handler{
		registry: registry,
		relay:    relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
	}
}

// HandleWS upgrades the connection and starts its pumps. Room membership
// is established afterwards by a board:join intent; an optional boardId
// query parameter joins immediately.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	conn := &Connection{
		ID:          uuid.New().String(),
		ws:          ws,
		send:        make(chan []byte, h.registry.config.SendBufferSize),
		done:        make(chan struct{}),
		registry:    h.registry,
		relay:       h.relay,
		rooms:       make(map[uuid.UUID]bool),
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}
	metricConnections.Inc()

	if raw := r.URL.Query().Get("boardId"); raw != "" {
		if boardID, err := uuid.Parse(raw); err == nil {
			h.registry.Join(conn, boardID)
		}
	}

	go conn.writePump()
	go func() {
		defer metricConnections.Dec()
		conn.readPump()
	}()

	log.Info().
		Str("connection_id", conn.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")
}

// HandleStats reports active connection counts per room.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	total, perBoard := h.registry.Stats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"total_connections": total,
		"active_rooms":      len(perBoard),
		"room_connections":  perBoard,
	})
}
