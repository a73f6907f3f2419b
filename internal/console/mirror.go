package console

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Phase is the coarse display phase of the session. The server also emits
// granular sub-phase labels which are stored verbatim alongside it.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseBetting     Phase = "betting"
	PhaseActionEnded Phase = "actionEnded"
	PhaseShowdown    Phase = "showdown"
)

// SessionMirror is the console's local copy of server-authoritative session
// state. Apply is its only mutating entry point; every other component reads
// snapshots. The mutex exists because the ops HTTP surface reads from other
// goroutines than the connection read pump.
type SessionMirror struct {
	mu         sync.RWMutex
	phase      Phase
	subPhase   string
	pot        int
	currentBet int
	deadline   *time.Time
	queue      []string
}

// SessionSnapshot is a read-only copy of the mirror for projectors and UI.
type SessionSnapshot struct {
	Phase             Phase      `json:"phase"`
	SubPhase          string     `json:"sub_phase,omitempty"`
	Pot               int        `json:"pot"`
	CurrentBet        int        `json:"current_bet"`
	CountdownDeadline *time.Time `json:"countdown_deadline,omitempty"`
	Queue             []string   `json:"queue"`
}

// Update describes the side effects of one applied event that downstream
// projectors care about.
type Update struct {
	// DeadlineChanged is true when the event set or cleared the countdown
	// deadline. Deadline is nil when it was cleared.
	DeadlineChanged bool
	Deadline        *time.Time

	// Payouts is non-nil when the event carried leaderboard snapshots for
	// delta computation.
	Payouts *PayoutsPayload
}

// NewSessionMirror returns a mirror with all-idle defaults.
func NewSessionMirror() *SessionMirror {
	return &SessionMirror{phase: PhaseIdle}
}

// Apply applies one admitted event as a state transition. The server is
// authoritative: out-of-order phase labels are applied as told rather than
// rejected. A field the mirror cannot interpret is dropped on its own; it
// never blocks unrelated fields of the same event. Unknown event types are
// ignored. The returned error only reports an undecodable payload, in which
// case the mirror is unchanged.
func (m *SessionMirror) Apply(ev Event) (Update, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Type {
	case EventTypeRoundStarted:
		var p RoundStartedPayload
		if err := unmarshalPayload(ev, &p); err != nil {
			return Update{}, err
		}
		m.phase = PhaseBetting
		m.pot = nonNegativeOrZero(p.Pot)
		m.currentBet = nonNegativeOrZero(p.CurrentBet)
		if p.EndsAt == nil {
			log.Warn().Str("event_type", string(ev.Type)).Msg("round start without endsAt, countdown untouched")
			return Update{}, nil
		}
		return m.setDeadline(*p.EndsAt), nil

	case EventTypeBettingStarted:
		var p BettingStartedPayload
		if err := unmarshalPayload(ev, &p); err != nil {
			return Update{}, err
		}
		m.phase = PhaseBetting
		if p.EndsAt == nil {
			log.Warn().Str("event_type", string(ev.Type)).Msg("betting window without endsAt, countdown untouched")
			return Update{}, nil
		}
		return m.setDeadline(*p.EndsAt), nil

	case EventTypeActionPhaseEnded:
		m.phase = PhaseActionEnded
		m.deadline = nil
		return Update{DeadlineChanged: true}, nil

	case EventTypeRoundResult:
		var p RoundResultPayload
		if err := unmarshalPayload(ev, &p); err != nil {
			return Update{}, err
		}
		m.phase = PhaseShowdown
		if p.Waiting != nil {
			m.queue = dedupeQueue(p.Waiting)
		}
		return Update{}, nil

	case EventTypeQueueUpdate:
		var p QueueUpdatePayload
		if err := unmarshalPayload(ev, &p); err != nil {
			return Update{}, err
		}
		if p.Waiting == nil {
			log.Warn().Str("event_type", string(ev.Type)).Msg("queue update without waiting list, queue untouched")
			return Update{}, nil
		}
		m.queue = dedupeQueue(p.Waiting)
		return Update{}, nil

	case EventTypePokerPhase:
		var p PokerPhasePayload
		if err := unmarshalPayload(ev, &p); err != nil {
			return Update{}, err
		}
		if p.Phase != nil {
			m.subPhase = *p.Phase
		}
		return Update{}, nil

	case EventTypePokerBetting:
		var p PokerBettingPayload
		if err := unmarshalPayload(ev, &p); err != nil {
			return Update{}, err
		}
		if p.Pot != nil && *p.Pot >= 0 {
			m.pot = *p.Pot
		}
		if p.CurrentBet != nil && *p.CurrentBet >= 0 {
			m.currentBet = *p.CurrentBet
		}
		return Update{}, nil

	case EventTypePayouts:
		var p PayoutsPayload
		if err := unmarshalPayload(ev, &p); err != nil {
			return Update{}, err
		}
		// Display-only: the snapshots pass through to the delta calculator
		// and are not retained by the mirror.
		return Update{Payouts: &p}, nil

	default:
		log.Debug().Str("event_type", string(ev.Type)).Msg("ignoring unknown event type")
		return Update{}, nil
	}
}

// setDeadline stores the deadline and reports it to projectors. A past
// deadline is stored as-is; the projector displays it as zero remaining.
// Caller holds m.mu.
func (m *SessionMirror) setDeadline(endsAtMillis int64) Update {
	deadline := time.UnixMilli(endsAtMillis)
	m.deadline = &deadline
	return Update{DeadlineChanged: true, Deadline: &deadline}
}

// Snapshot returns a copy of the mirror safe to read without coordination.
func (m *SessionMirror) Snapshot() SessionSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := SessionSnapshot{
		Phase:      m.phase,
		SubPhase:   m.subPhase,
		Pot:        m.pot,
		CurrentBet: m.currentBet,
		Queue:      append([]string(nil), m.queue...),
	}
	if m.deadline != nil {
		d := *m.deadline
		snap.CountdownDeadline = &d
	}
	return snap
}

// QueueSize returns the number of waiting players.
func (m *SessionMirror) QueueSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queue)
}

func unmarshalPayload(ev Event, dst any) error {
	if len(ev.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(ev.Data, dst); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", ev.Type, err)
	}
	return nil
}

func nonNegativeOrZero(v *int) int {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}

// dedupeQueue collapses duplicate identifiers in a server waiting list.
// Re-insertion replaces position, so the last occurrence wins.
func dedupeQueue(ids []string) []string {
	last := make(map[string]int, len(ids))
	for i, id := range ids {
		last[id] = i
	}
	out := make([]string, 0, len(last))
	for i, id := range ids {
		if last[id] == i {
			out = append(out, id)
		}
	}
	return out
}
