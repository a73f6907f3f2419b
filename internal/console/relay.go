package console

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// RelayConfig holds configuration for the optional NATS event relay.
type RelayConfig struct {
	URL           string
	SubjectPrefix string // e.g. "console.events"
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultRelayConfig returns the default relay configuration.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "console.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// EventRelay republishes admitted events to NATS so ops tooling can observe
// the session without holding a game-server connection. Best effort: publish
// failures are logged and never block mirror application.
type EventRelay struct {
	nc     *nats.Conn
	config RelayConfig
}

// NewEventRelay connects to NATS and returns a relay.
func NewEventRelay(config RelayConfig) (*EventRelay, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	log.Info().Str("url", config.URL).Str("subject_prefix", config.SubjectPrefix).Msg("event relay connected")
	return &EventRelay{nc: nc, config: config}, nil
}

// Publish republishes one admitted event on a per-type subject.
func (r *EventRelay) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to marshal event for relay")
		return
	}

	subject := fmt.Sprintf("%s.%s", r.config.SubjectPrefix, ev.Type)
	if err := r.nc.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("failed to relay event")
	}
}

// Close shuts the relay down.
func (r *EventRelay) Close() {
	if r.nc != nil {
		r.nc.Close()
	}
}
