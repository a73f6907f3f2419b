package console

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ServiceConfig holds configuration for one console session.
type ServiceConfig struct {
	// Channel is this console's channel tag. Events tagged for other
	// channels are dropped before they can touch the mirror.
	Channel string

	Conn ConnConfig

	// Relay enables the NATS event relay when non-nil.
	Relay *RelayConfig

	// CountdownSink receives remaining-time samples for display. Optional.
	CountdownSink CountdownSink

	// Notifier surfaces connection notices to the operator. Optional.
	Notifier Notifier
}

// Service owns one live session sync pipeline: connection manager, channel
// filter, session mirror, countdown projector, delta calculator and dispatch
// bridge. It is explicitly constructed and disposed; there is no implicit
// shared instance.
type Service struct {
	instanceID string
	clock      clockwork.Clock

	conn       *Conn
	filter     ChannelFilter
	mirror     *SessionMirror
	countdown  *CountdownProjector
	dispatcher *Dispatcher
	relay      *EventRelay

	mu         sync.Mutex
	lastDeltas []PayoutDelta
}

// NewService wires a console session together. clock is injectable for
// tests; pass clockwork.NewRealClock() in production.
func NewService(config ServiceConfig, clock clockwork.Clock) (*Service, error) {
	sink := config.CountdownSink
	if sink == nil {
		sink = func(time.Duration, string) {} // no display attached
	}

	s := &Service{
		instanceID: uuid.New().String()[:8],
		clock:      clock,
		filter:     NewChannelFilter(config.Channel),
		mirror:     NewSessionMirror(),
	}
	s.countdown = NewCountdownProjector(clock, sink)
	s.conn = NewConn(config.Conn, clock, s.handleEvent, config.Notifier)
	s.dispatcher = NewDispatcher(s.conn, clock)

	if config.Relay != nil {
		relay, err := NewEventRelay(*config.Relay)
		if err != nil {
			return nil, err
		}
		s.relay = relay
	}

	log.Info().
		Str("instance", s.instanceID).
		Str("channel", config.Channel).
		Str("url", config.Conn.URL).
		Msg("console session created")
	return s, nil
}

// Start makes the initial connection attempt. A failure here is surfaced to
// the operator but is not fatal; the next operator action retries via
// EnsureConnected.
func (s *Service) Start(ctx context.Context) {
	if !s.conn.EnsureConnected(ctx) {
		log.Warn().Str("instance", s.instanceID).Msg("initial connection attempt failed")
	}
}

// Stop disposes the session: countdown, relay and connection.
func (s *Service) Stop() {
	s.countdown.Stop()
	if s.relay != nil {
		s.relay.Close()
	}
	s.conn.Close()
	log.Info().Str("instance", s.instanceID).Msg("console session stopped")
}

// handleEvent is the single inbound pipeline: filter, mirror transition,
// then derived projections. It runs on the connection's read goroutine, so
// events are applied strictly in arrival order.
func (s *Service) handleEvent(ev Event) {
	if !s.filter.Admit(ev) {
		log.Debug().
			Str("event_type", string(ev.Type)).
			Str("event_channel", ev.Channel).
			Msg("dropping foreign-channel event")
		return
	}

	if s.relay != nil {
		s.relay.Publish(ev)
	}

	update, err := s.mirror.Apply(ev)
	if err != nil {
		log.Warn().Err(err).Str("event_type", string(ev.Type)).Msg("event not applied")
		return
	}

	if update.DeadlineChanged {
		if update.Deadline == nil {
			s.countdown.Clear()
		} else {
			s.countdown.Set(*update.Deadline)
		}
	}

	if update.Payouts != nil {
		deltas := ComputeDeltas(update.Payouts.Leaderboard, update.Payouts.LeaderboardAfter)
		s.mu.Lock()
		s.lastDeltas = deltas
		s.mu.Unlock()
		log.Info().Int("deltas", len(deltas)).Msg("payout deltas computed")
	}
}

// Dispatcher returns the dispatch bridge for operator intents.
func (s *Service) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Snapshot returns the current session mirror snapshot.
func (s *Service) Snapshot() SessionSnapshot {
	return s.mirror.Snapshot()
}

// LastDeltas returns the most recent payout deltas, or nil before the first
// payout event.
func (s *Service) LastDeltas() []PayoutDelta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PayoutDelta(nil), s.lastDeltas...)
}

// ConnStats returns connection statistics for the ops surface.
func (s *Service) ConnStats() ConnStats {
	return s.conn.Stats()
}
