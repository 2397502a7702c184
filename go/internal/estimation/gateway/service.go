package gateway

import (
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/pointing/go/internal/estimation"
	"github.com/rs/zerolog/log"
)

// Service is the estimation gateway: one session, its live connections and
// the HTTP surface in front of them
type Service struct {
	session        *estimation.Session
	registry       *ConnectionRegistry
	wsHandler      *WebSocketHandler
	sessionHandler *SessionHandler
	mirror         *NATSMirror
	apiPrefix      string
}

// Config holds configuration for the gateway service
type Config struct {
	APIPrefix        string
	ConnectionConfig ConnectionConfig
	NATS             *NATSConfig // nil disables the NATS mirror
	Clock            clockwork.Clock
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		APIPrefix:        "/api",
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a new gateway service
func NewService(config Config) (*Service, error) {
	registry := NewConnectionRegistry(config.ConnectionConfig, config.Clock)

	broadcasters := estimation.Broadcasters{registry}

	var mirror *NATSMirror
	if config.NATS != nil {
		var err error
		mirror, err = NewNATSMirror(*config.NATS)
		if err != nil {
			return nil, fmt.Errorf("failed to create NATS mirror: %w", err)
		}
		broadcasters = append(broadcasters, mirror)
	}

	session := estimation.NewSession(broadcasters)

	return &Service{
		session:        session,
		registry:       registry,
		wsHandler:      NewWebSocketHandler(session, registry),
		sessionHandler: NewSessionHandler(session),
		mirror:         mirror,
		apiPrefix:      config.APIPrefix,
	}, nil
}

// Session returns the session owned by the service
func (s *Service) Session() *estimation.Session {
	return s.session
}

// Registry returns the connection registry owned by the service
func (s *Service) Registry() *ConnectionRegistry {
	return s.registry
}

// RegisterRoutes registers the WebSocket and REST routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET "+s.apiPrefix+"/participant/{id}", s.wsHandler.HandleParticipantConnection)
	s.sessionHandler.RegisterSessionRoutes(mux, s.apiPrefix)
	mux.HandleFunc("GET /ws/stats", s.HandleConnectionStats)
	log.Info().Str("prefix", s.apiPrefix).Msg("estimation gateway routes registered")
}

// HandleConnectionStats returns statistics about active connections
func (s *Service) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Stats())
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"service":           "estimation_gateway",
		"status":            "running",
		"total_connections": s.registry.Len(),
		"participants":      s.session.Len(),
		"opened":            s.session.Revealed(),
		"nats_mirror":       s.mirror != nil,
	}
}

// Stop releases the NATS connection, if any
func (s *Service) Stop() error {
	if s.mirror != nil {
		if err := s.mirror.Close(); err != nil {
			return fmt.Errorf("failed to close NATS mirror: %w", err)
		}
	}
	log.Info().Msg("estimation gateway service stopped")
	return nil
}
