package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/pointing/go/internal/estimation"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds configuration for mirroring snapshots onto NATS
type NATSConfig struct {
	URL           string
	SubjectPrefix string // snapshots go to "<prefix>.state"
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns default NATS configuration
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "estimation",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// msgPublisher is the part of *nats.Conn the mirror needs
type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSMirror publishes every session snapshot to NATS so other services can
// follow the session. Publishing is buffered by the NATS client and never
// blocks the session.
type NATSMirror struct {
	nc        *nats.Conn
	publisher msgPublisher
	subject   string
}

// NewNATSMirror connects to NATS and returns a mirror ready to broadcast
func NewNATSMirror(cfg NATSConfig) (*NATSMirror, error) {
	opts := []nats.Option{
		nats.Name("estimation-gateway"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	mirror := newNATSMirror(nc, cfg.SubjectPrefix)
	mirror.nc = nc
	log.Info().Str("url", nc.ConnectedUrl()).Str("subject", mirror.subject).Msg("mirroring session to NATS")
	return mirror, nil
}

func newNATSMirror(publisher msgPublisher, subjectPrefix string) *NATSMirror {
	if subjectPrefix == "" {
		subjectPrefix = DefaultNATSConfig().SubjectPrefix
	}
	return &NATSMirror{
		publisher: publisher,
		subject:   subjectPrefix + ".state",
	}
}

// Broadcast publishes the snapshot. Failures are logged and not retried.
func (m *NATSMirror) Broadcast(snapshot estimation.Snapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal snapshot for NATS")
		return
	}

	msg := &nats.Msg{
		Subject: m.subject,
		Data:    data,
		Header: nats.Header{
			"Event-ID": []string{uuid.New().String()},
			"Opened":   []string{strconv.FormatBool(snapshot.Opened)},
		},
	}
	if err := m.publisher.PublishMsg(msg); err != nil {
		log.Error().Err(err).Str("subject", m.subject).Msg("failed to publish snapshot to NATS")
	}
}

// Close flushes pending snapshots and closes the NATS connection
func (m *NATSMirror) Close() error {
	if m.nc == nil {
		return nil
	}
	if err := m.nc.Drain(); err != nil {
		m.nc.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}
