package gateway

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/pointing/go/internal/estimation"
	"github.com/rs/zerolog/log"
)

// duplicateJoinFrame is sent before closing a second connection for an id
// that is already in the session.
var duplicateJoinFrame = []byte(`{"error":"You can't join twice"}`)

// WebSocketHandler handles the persistent per-participant channel
type WebSocketHandler struct {
	session  *estimation.Session
	registry *ConnectionRegistry
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(session *estimation.Session, registry *ConnectionRegistry) *WebSocketHandler {
	return &WebSocketHandler{
		session:  session,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  registry.config.ReadBufferSize,
			WriteBufferSize: registry.config.WriteBufferSize,
			CheckOrigin:     registry.config.CheckOrigin,
		},
	}
}

// HandleParticipantConnection handles GET {prefix}/participant/{id}
func (h *WebSocketHandler) HandleParticipantConnection(w http.ResponseWriter, r *http.Request) {
	participantID := r.PathValue("id")
	if participantID == "" {
		http.Error(w, "participant id is required", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		log.Error().Err(err).Str("participant_id", participantID).Msg("failed to upgrade WebSocket connection")
		return
	}

	conn := h.registry.newConnection(uuid.New().String(), participantID, ws)
	log.Info().
		Str("connection_id", conn.ID).
		Str("participant_id", participantID).
		Msg("client connected")

	register := func() { h.registry.Register(participantID, conn) }
	if err := h.session.Join(participantID, "", register); err != nil {
		if errors.Is(err, estimation.ErrDuplicateParticipant) {
			h.rejectDuplicate(conn)
			return
		}
		log.Error().Err(err).Str("participant_id", participantID).Msg("failed to join session")
		conn.closeTransport()
		return
	}

	go conn.writePump()
	go conn.readPump(
		func(message []byte) {
			h.handleVote(participantID, message)
		},
		func() {
			// Unregister before leaving so a quick re-join under the same id
			// can never be unregistered by this cleanup.
			h.registry.unregisterConnection(conn)
			h.session.Leave(participantID)
			log.Info().
				Str("connection_id", conn.ID).
				Str("participant_id", participantID).
				Msg("client disconnected")
		},
	)
}

// rejectDuplicate tells the client why it is refused and closes the socket.
// The connection was never registered.
func (h *WebSocketHandler) rejectDuplicate(conn *Connection) {
	defer conn.closeTransport()

	if err := conn.writeImmediate(websocket.TextMessage, duplicateJoinFrame); err != nil {
		log.Error().Err(err).Str("participant_id", conn.ParticipantID).Msg("failed to send duplicate join error")
		return
	}
	closeFrame := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.writeImmediate(websocket.CloseMessage, closeFrame); err != nil {
		log.Debug().Err(err).Str("participant_id", conn.ParticipantID).Msg("failed to send close frame")
	}
}

// handleVote validates an inbound frame and applies it. Rejections are
// logged and dropped; the sender gets no reply.
func (h *WebSocketHandler) handleVote(participantID string, message []byte) {
	log.Debug().Str("participant_id", participantID).Bytes("payload", message).Msg("message received")

	points, err := estimation.DecodeVote(message)
	if err != nil {
		log.Warn().
			Err(err).
			Str("participant_id", participantID).
			Bytes("payload", message).
			Msg("dropping invalid vote")
		return
	}

	h.session.CastVote(participantID, points)
}
