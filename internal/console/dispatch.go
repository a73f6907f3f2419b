package console

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// transport is what the dispatch bridge needs from the connection manager.
type transport interface {
	EnsureConnected(ctx context.Context) bool
	Send(ctx context.Context, cmd Command) error
}

// Dispatcher translates operator intents into outbound protocol commands.
// Every command confirms readiness first; a command issued while the server
// is unreachable fails with ErrNotConnected before transmission.
type Dispatcher struct {
	conn  transport
	clock clockwork.Clock
}

// NewDispatcher builds a dispatch bridge over conn.
func NewDispatcher(conn transport, clock clockwork.Clock) *Dispatcher {
	return &Dispatcher{conn: conn, clock: clock}
}

// StartRoundOptions control the startRound command.
type StartRoundOptions struct {
	StartNow bool
	Reset    bool
}

// StartRound asks the server to begin the next round.
func (d *Dispatcher) StartRound(ctx context.Context, opts StartRoundOptions) error {
	return d.send(ctx, CommandTypeStartRound, startRoundPayload{
		StartNow: opts.StartNow,
		Reset:    opts.Reset,
	})
}

// ForceDraw asks the server to draw for the active hand, holding the given
// card positions.
func (d *Dispatcher) ForceDraw(ctx context.Context, held []int) error {
	if held == nil {
		held = []int{}
	}
	return d.send(ctx, CommandTypeForceDraw, forceDrawPayload{Held: held})
}

func (d *Dispatcher) send(ctx context.Context, typ CommandType, payload any) error {
	if !d.conn.EnsureConnected(ctx) {
		log.Warn().Str("command", string(typ)).Msg("cannot reach game server, command not sent")
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", typ, err)
	}

	cmd := Command{
		ID:        uuid.New().String(),
		Type:      typ,
		Timestamp: d.clock.Now().UTC(),
		Data:      data,
	}
	if err := d.conn.Send(ctx, cmd); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}

	log.Info().Str("command", string(typ)).Str("command_id", cmd.ID).Msg("command dispatched")
	return nil
}
