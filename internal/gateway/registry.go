package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Registry tracks which live connections belong to which board room and
// fans events out to them. Broadcasts are funneled through a single
// buffered channel drained by one goroutine, so membership snapshots and
// fan-out never race with joins happening mid-broadcast.
type Registry struct {
	rooms map[uuid.UUID]map[*Connection]bool
	mu    sync.RWMutex

	config      Config
	broadcastCh chan broadcastMessage
}

// Connection represents a WebSocket connection to a client.
type Connection struct {
	ID       string
	ws       *websocket.Conn
	send     chan []byte
	done     chan struct{}
	registry *Registry
	relay    *Relay

	// rooms this connection has joined, guarded by registry.mu
	rooms map[uuid.UUID]bool

	closeOnce sync.Once

	ConnectedAt time.Time
	LastPing    time.Time
}

// Config holds configuration for WebSocket connections and rooms.
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	BroadcastBuffer int

	// ExclusiveRooms makes a join leave the previously joined room, so a
	// connection receives events for at most one board. When false the
	// connection accumulates rooms until it disconnects.
	ExclusiveRooms bool

	CheckOrigin func(r *http.Request) bool
}

type broadcastMessage struct {
	boardID uuid.UUID
	event   *Event
}

// DefaultConfig returns default WebSocket and room configuration.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		BroadcastBuffer: 1000,
		ExclusiveRooms:  true,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewRegistry creates a new room registry.
func NewRegistry(config Config) *Registry {
	return &Registry{
		rooms:       make(map[uuid.UUID]map[*Connection]bool),
		config:      config,
		broadcastCh: make(chan broadcastMessage, config.BroadcastBuffer),
	}
}

// Start begins processing broadcast messages until ctx is cancelled.
func (r *Registry) Start(ctx context.Context) {
	log.Info().Msg("room registry started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("room registry shutting down")
			return
		case message := <-r.broadcastCh:
			r.handleBroadcast(message)
		}
	}
}

// Join adds a connection to a board's room. Joining twice is a no-op.
// The board id is not validated against the store: joining a nonexistent
// board's room is harmless, it simply never receives events.
func (r *Registry) Join(conn *Connection, boardID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn.rooms[boardID] {
		return
	}

	if r.config.ExclusiveRooms {
		for prev := range conn.rooms {
			r.removeFromRoomLocked(conn, prev)
		}
	}

	if r.rooms[boardID] == nil {
		r.rooms[boardID] = make(map[*Connection]bool)
	}
	r.rooms[boardID][conn] = true
	conn.rooms[boardID] = true
	metricRooms.Set(float64(len(r.rooms)))

	log.Debug().
		Str("connection_id", conn.ID).
		Str("board_id", boardID.String()).
		Int("room_size", len(r.rooms[boardID])).
		Msg("connection joined room")
}

// Broadcast queues an event for every connection in the board's room,
// including the one that triggered the originating mutation. Implements
// board.Broadcaster.
func (r *Registry) Broadcast(boardID uuid.UUID, eventType string, payload interface{}) {
	event, err := NewEvent(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to build broadcast event")
		return
	}

	select {
	case r.broadcastCh <- broadcastMessage{boardID: boardID, event: event}:
	default:
		metricDropped.Inc()
		log.Warn().Str("board_id", boardID.String()).Msg("broadcast channel full, dropping message")
	}
}

// remove drops a connection from every room it joined and signals its
// pumps to stop. Safe to call more than once.
func (r *Registry) remove(conn *Connection) {
	r.mu.Lock()
	for boardID := range conn.rooms {
		r.removeFromRoomLocked(conn, boardID)
	}
	metricRooms.Set(float64(len(r.rooms)))
	r.mu.Unlock()

	conn.close()
}

func (r *Registry) removeFromRoomLocked(conn *Connection, boardID uuid.UUID) {
	if connections, exists := r.rooms[boardID]; exists {
		delete(connections, conn)
		if len(connections) == 0 {
			delete(r.rooms, boardID)
		}
	}
	delete(conn.rooms, boardID)
}

// handleBroadcast fans one event out to a room.
func (r *Registry) handleBroadcast(message broadcastMessage) {
	r.mu.RLock()
	connections, exists := r.rooms[message.boardID]
	if !exists {
		r.mu.RUnlock()
		return
	}

	// Snapshot so joins and leaves during fan-out cannot corrupt the
	// iteration or skip members.
	targets := make([]*Connection, 0, len(connections))
	for conn := range connections {
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	data, err := json.Marshal(message.event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		if !conn.enqueue(data) {
			// Connection is slow/dead, close it
			log.Warn().
				Str("connection_id", conn.ID).
				Msg("connection send buffer full, closing connection")
			r.remove(conn)
		}
	}

	metricBroadcasts.WithLabelValues(message.event.Type).Inc()
	log.Debug().
		Str("event_type", message.event.Type).
		Str("board_id", message.boardID.String()).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// RoomSize reports the number of connections currently in a room.
func (r *Registry) RoomSize(boardID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[boardID])
}

// Stats returns counts of active connections per room.
func (r *Registry) Stats() (total int, perBoard map[string]int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	perBoard = make(map[string]int)
	for boardID, connections := range r.rooms {
		perBoard[boardID.String()] = len(connections)
		total += len(connections)
	}
	return total, perBoard
}

// enqueue offers data to the connection's send channel without blocking.
func (c *Connection) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// sendEvent delivers an event to this connection only. Used for error
// acknowledgments, never for room broadcasts.
func (c *Connection) sendEvent(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal event")
		return
	}
	if !c.enqueue(data) {
		log.Warn().Str("connection_id", c.ID).Msg("send buffer full, dropping event")
	}
}

// close signals the pumps to stop and closes the socket. The send
// channel is left open so concurrent enqueues never panic.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			c.ws.Close()
		}
	})
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.registry.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.registry.remove(c)
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(c.registry.config.WriteTimeout))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.registry.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.registry.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump reads intents from the WebSocket connection and hands them to
// the relay. When the read loop ends, the connection implicitly leaves
// every room it joined.
func (c *Connection) readPump() {
	defer c.registry.remove(c)

	c.ws.SetReadLimit(c.registry.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.registry.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.registry.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.relay.HandleMessage(context.Background(), c, message)
		c.ws.SetReadDeadline(time.Now().Add(c.registry.config.ReadTimeout))
	}
}
