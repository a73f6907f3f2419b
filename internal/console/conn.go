package console

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrNotConnected is returned when a command is issued without a live
// connection. Commands are never silently queued.
var ErrNotConnected = errors.New("not connected to game server")

// ConnectionState tracks the one persistent connection to the game server.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// EventHandler receives inbound frames one at a time, in arrival order, from
// the connection's single read goroutine.
type EventHandler func(Event)

// Notifier surfaces user-visible connection notices to the operator.
type Notifier func(msg string)

// ConnConfig holds configuration for the game-server connection.
type ConnConfig struct {
	URL            string
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
}

// DefaultConnConfig returns the default connection configuration.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		ConnectTimeout: 10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// ConnStats describes the connection for the ops surface.
type ConnStats struct {
	State          string     `json:"state"`
	ConnectedAt    *time.Time `json:"connected_at,omitempty"`
	FramesReceived uint64     `json:"frames_received"`
	FramesDropped  uint64     `json:"frames_dropped"`
	LastEventAt    *time.Time `json:"last_event_at,omitempty"`
}

// connectAttempt is one outstanding dial shared by every caller that asked
// for readiness while it was in flight. ok is written before done is closed.
type connectAttempt struct {
	done chan struct{}
	ok   bool
}

// Conn owns the persistent websocket to the authoritative game server.
//
// EnsureConnected is idempotent and single-flight: exactly one dial may be
// outstanding at a time, and concurrent callers join the same attempt rather
// than issuing redundant dials. Failure and timeout both report false;
// retrying is a deliberate operator action, never automatic.
type Conn struct {
	config  ConnConfig
	clock   clockwork.Clock
	handler EventHandler
	notify  Notifier
	dialer  *websocket.Dialer

	mu      sync.Mutex
	state   ConnectionState
	ws      *websocket.Conn
	attempt *connectAttempt

	writeMu sync.Mutex

	connectedAt    time.Time
	framesReceived uint64
	framesDropped  uint64
	lastEventAt    time.Time
}

// NewConn builds a connection manager. handler may be nil while wiring;
// frames received without a handler are dropped and counted.
func NewConn(config ConnConfig, clock clockwork.Clock, handler EventHandler, notify Notifier) *Conn {
	return &Conn{
		config:  config,
		clock:   clock,
		handler: handler,
		notify:  notify,
		dialer:  websocket.DefaultDialer,
		state:   StateDisconnected,
	}
}

// EnsureConnected reports whether the connection is ready to send and
// receive, dialing if necessary. When already connected it resolves
// immediately with no network activity. The dial races success, explicit
// error and the configured connect timeout; whichever fires first is final
// and tears the others down. ctx lets the caller stop waiting early, which
// reports false without aborting the shared attempt.
func (c *Conn) EnsureConnected(ctx context.Context) bool {
	c.mu.Lock()

	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return true

	case StateConnecting:
		att := c.attempt
		c.mu.Unlock()
		return waitForAttempt(ctx, att)

	default:
		att := &connectAttempt{done: make(chan struct{})}
		c.attempt = att
		c.state = StateConnecting
		c.mu.Unlock()

		// Notice fires only on the transition into Connecting, not on
		// every call.
		if c.notify != nil {
			c.notify("connecting to game server")
		}
		go c.dial(att)
		return waitForAttempt(ctx, att)
	}
}

func waitForAttempt(ctx context.Context, att *connectAttempt) bool {
	select {
	case <-att.done:
		return att.ok
	case <-ctx.Done():
		return false
	}
}

// dial runs one connect attempt. The timeout context covers the whole race:
// cancelling it is what unregisters the losing outcomes.
func (c *Conn) dial(att *connectAttempt) {
	dialCtx, cancel := clockwork.WithTimeout(context.Background(), c.clock, c.config.ConnectTimeout)
	defer cancel()

	ws, _, err := c.dialer.DialContext(dialCtx, c.config.URL, nil)

	c.mu.Lock()
	if err != nil {
		c.state = StateDisconnected
		c.attempt = nil
		att.ok = false
		close(att.done)
		c.mu.Unlock()

		log.Error().Err(err).Str("url", c.config.URL).Msg("failed to connect to game server")
		return
	}

	c.ws = ws
	c.state = StateConnected
	c.attempt = nil
	c.connectedAt = c.clock.Now()
	att.ok = true
	close(att.done)
	c.mu.Unlock()

	log.Info().Str("url", c.config.URL).Msg("connected to game server")
	go c.readPump(ws)
}

// readPump is the single reader: it delivers frames to the handler one at a
// time, in arrival order, until the transport is lost.
func (c *Conn) readPump(ws *websocket.Conn) {
	ws.SetReadLimit(c.config.MaxMessageSize)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Msg("unexpected websocket close")
			}
			c.transportLost(ws)
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.mu.Lock()
			c.framesDropped++
			c.mu.Unlock()
			log.Warn().Err(err).Msg("dropping undecodable frame")
			continue
		}

		c.mu.Lock()
		c.framesReceived++
		c.lastEventAt = c.clock.Now()
		handler := c.handler
		c.mu.Unlock()

		if handler != nil {
			handler(ev)
		} else {
			c.mu.Lock()
			c.framesDropped++
			c.mu.Unlock()
		}
	}
}

// transportLost flips the state to Disconnected if ws is still the live
// connection. A stale pump from an earlier connection must not clobber a
// newer one.
func (c *Conn) transportLost(ws *websocket.Conn) {
	c.mu.Lock()
	if c.ws != ws {
		c.mu.Unlock()
		return
	}
	c.ws = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	ws.Close()
	log.Warn().Msg("game server connection lost")
}

// Send transmits one outbound command. It rejects immediately when not
// connected; readiness is the caller's job via EnsureConnected.
func (c *Conn) Send(ctx context.Context, cmd Command) error {
	c.mu.Lock()
	ws := c.ws
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || ws == nil {
		return ErrNotConnected
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ws.SetWriteDeadline(c.clock.Now().Add(c.config.WriteTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.transportLost(ws)
		return err
	}
	return nil
}

// SetHandler installs the inbound frame handler. Intended for wiring before
// the first dial.
func (c *Conn) SetHandler(handler EventHandler) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Conn) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot of connection statistics.
func (c *Conn) Stats() ConnStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := ConnStats{
		State:          c.state.String(),
		FramesReceived: c.framesReceived,
		FramesDropped:  c.framesDropped,
	}
	if c.state == StateConnected && !c.connectedAt.IsZero() {
		t := c.connectedAt
		stats.ConnectedAt = &t
	}
	if !c.lastEventAt.IsZero() {
		t := c.lastEventAt
		stats.LastEventAt = &t
	}
	return stats
}

// Close tears down the connection for good.
func (c *Conn) Close() {
	c.mu.Lock()
	ws := c.ws
	c.ws = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if ws != nil {
		c.writeMu.Lock()
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "console closing"),
			c.clock.Now().Add(time.Second))
		c.writeMu.Unlock()
		ws.Close()
	}
}
