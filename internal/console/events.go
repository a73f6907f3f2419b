package console

import (
	"encoding/json"
	"time"
)

// EventType identifies an inbound event kind from the game server.
type EventType string

const (
	EventTypeRoundStarted     EventType = "roundStarted"
	EventTypeBettingStarted   EventType = "bettingStarted"
	EventTypeActionPhaseEnded EventType = "actionPhaseEnded"
	EventTypeRoundResult      EventType = "roundResult"
	EventTypeQueueUpdate      EventType = "queueUpdate"
	EventTypePokerPhase       EventType = "pokerPhase"
	EventTypePokerBetting     EventType = "pokerBetting"
	EventTypePayouts          EventType = "payouts"
)

// Event is the envelope every server frame arrives in. Channel is empty for
// broadcast frames that every console should see.
type Event struct {
	Type    EventType       `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// Payload fields are pointers so a frame that omits or mangles one field can
// still apply its remaining fields. See SessionMirror.Apply.

// RoundStartedPayload starts a new betting round.
type RoundStartedPayload struct {
	EndsAt     *int64 `json:"endsAt"` // unix milliseconds
	Pot        *int   `json:"pot"`
	CurrentBet *int   `json:"currentBet"`
}

// BettingStartedPayload opens a betting window mid-round.
type BettingStartedPayload struct {
	EndsAt *int64 `json:"endsAt"` // unix milliseconds
}

// RoundResultPayload carries the showdown evaluation and the authoritative
// waiting list.
type RoundResultPayload struct {
	Evaluation string   `json:"evaluation"`
	Waiting    []string `json:"waiting"`
}

// QueueUpdatePayload replaces the waiting-player queue wholesale.
type QueueUpdatePayload struct {
	Waiting []string `json:"waiting"`
}

// PokerPhasePayload carries a server-defined granular sub-phase label.
type PokerPhasePayload struct {
	Phase *string `json:"phase"`
}

// PokerBettingPayload updates the numeric betting state.
type PokerBettingPayload struct {
	Pot        *int `json:"pot"`
	CurrentBet *int `json:"currentBet"`
}

// LeaderboardEntry is one player/chip-count pair; rank is implied by position.
type LeaderboardEntry struct {
	PlayerID string `json:"playerId"`
	Chips    int    `json:"chips"`
}

// PayoutsPayload carries the per-player payouts plus the before/after
// leaderboard snapshots taken around the payout.
type PayoutsPayload struct {
	Payouts          map[string]int     `json:"payouts"`
	Leaderboard      []LeaderboardEntry `json:"leaderboard"`
	LeaderboardAfter []LeaderboardEntry `json:"leaderboardAfter"`
}

// CommandType identifies an outbound operator command.
type CommandType string

const (
	CommandTypeStartRound CommandType = "startRound"
	CommandTypeForceDraw  CommandType = "forceDraw"
)

// Command is the envelope for outbound operator commands.
type Command struct {
	ID        string          `json:"id"`
	Type      CommandType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type startRoundPayload struct {
	StartNow bool `json:"startNow,omitempty"`
	Reset    bool `json:"reset,omitempty"`
}

type forceDrawPayload struct {
	Held []int `json:"held"`
}
