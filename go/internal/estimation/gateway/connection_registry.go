package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/pointing/go/internal/estimation"
	"github.com/rs/zerolog/log"
)

// ConnectionRegistry tracks the live WebSocket connection of every
// participant and fans session snapshots out to them
type ConnectionRegistry struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	config ConnectionConfig
	clock  clockwork.Clock
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// ConnectionStats describes the registry for the stats endpoints
type ConnectionStats struct {
	TotalConnections int              `json:"total_connections"`
	Connections      []ConnectionStat `json:"connections"`
}

// ConnectionStat describes one live connection
type ConnectionStat struct {
	ConnectionID  string    `json:"connection_id"`
	ParticipantID string    `json:"participant_id"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastPing      time.Time `json:"last_ping"`
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024, // votes are tiny
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  64,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionRegistry creates an empty registry
func NewConnectionRegistry(config ConnectionConfig, clock clockwork.Clock) *ConnectionRegistry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	defaults := DefaultConnectionConfig()
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = defaults.SendBufferSize
	}
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = defaults.MaxMessageSize
	}
	return &ConnectionRegistry{
		connections: make(map[string]*Connection),
		config:      config,
		clock:       clock,
	}
}

// Register adds a participant's connection. Session.Join rejects duplicate
// ids and handlers unregister before leaving, so an existing entry is never
// expected; if one shows up it is closed and replaced.
func (r *ConnectionRegistry) Register(participantID string, conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if stale, exists := r.connections[participantID]; exists && stale != conn {
		log.Error().
			Str("participant_id", participantID).
			Str("connection_id", stale.ID).
			Msg("participant already had a registered connection, replacing it")
		stale.closeSend()
		stale.closeTransport()
	}
	r.connections[participantID] = conn

	log.Debug().
		Str("connection_id", conn.ID).
		Str("participant_id", participantID).
		Int("total_connections", len(r.connections)).
		Msg("connection registered")
}

// Unregister removes a participant's connection and closes its send queue.
// It is safe to call for ids that are not registered.
func (r *ConnectionRegistry) Unregister(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.connections[participantID]
	if !exists {
		return
	}
	delete(r.connections, participantID)
	conn.closeSend()

	log.Info().
		Str("connection_id", conn.ID).
		Str("participant_id", participantID).
		Int("total_connections", len(r.connections)).
		Msg("connection unregistered")
}

// unregisterConnection removes conn only if it is still the registered
// connection for its participant.
func (r *ConnectionRegistry) unregisterConnection(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, exists := r.connections[conn.ParticipantID]; exists && current == conn {
		delete(r.connections, conn.ParticipantID)
		log.Info().
			Str("connection_id", conn.ID).
			Str("participant_id", conn.ParticipantID).
			Int("total_connections", len(r.connections)).
			Msg("connection unregistered")
	}
	conn.closeSend()
}

// Broadcast queues the snapshot on every registered connection. Each send
// is non-blocking; a connection whose queue is full is closed so its
// handler can leave the session and unregister it.
func (r *ConnectionRegistry) Broadcast(snapshot estimation.Snapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal snapshot for broadcast")
		return
	}

	// Sends happen under the read lock so Unregister cannot close a queue mid-send.
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for participantID, conn := range r.connections {
		if conn.enqueue(data) {
			delivered++
			continue
		}
		log.Warn().
			Str("connection_id", conn.ID).
			Str("participant_id", participantID).
			Msg("connection send buffer full, closing connection")
		conn.closeTransport()
	}

	log.Debug().
		Bool("opened", snapshot.Opened).
		Int("participants", len(snapshot.Participants)).
		Int("connections", len(r.connections)).
		Int("delivered", delivered).
		Msg("snapshot broadcasted")
}

// Len returns the number of registered connections
func (r *ConnectionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Stats returns statistics about active connections
func (r *ConnectionRegistry) Stats() ConnectionStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := ConnectionStats{
		TotalConnections: len(r.connections),
		Connections:      make([]ConnectionStat, 0, len(r.connections)),
	}
	for participantID, conn := range r.connections {
		stats.Connections = append(stats.Connections, ConnectionStat{
			ConnectionID:  conn.ID,
			ParticipantID: participantID,
			ConnectedAt:   conn.ConnectedAt,
			LastPing:      conn.LastPing(),
		})
	}
	return stats
}

// newConnection wraps an upgraded socket. Pumps are started by the handler
// once the participant has joined.
func (r *ConnectionRegistry) newConnection(id, participantID string, ws *websocket.Conn) *Connection {
	now := r.clock.Now()
	return &Connection{
		ID:            id,
		ParticipantID: participantID,
		Conn:          ws,
		send:          make(chan []byte, r.config.SendBufferSize),
		config:        r.config,
		clock:         r.clock,
		ConnectedAt:   now,
		lastPing:      now,
	}
}
