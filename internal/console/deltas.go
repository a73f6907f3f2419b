package console

// PayoutDelta is a derived chip movement for one player between the before
// and after leaderboard snapshots of a payout event. Display-only; nothing
// persists it.
type PayoutDelta struct {
	PlayerID string `json:"player_id"`
	Delta    int    `json:"delta"`
}

// ComputeDeltas joins two leaderboard snapshots by player identity and
// returns the non-zero chip deltas in after's rank order.
//
// Players present only in before left between snapshots and are omitted.
// Players present only in after are treated as their own baseline: their
// delta is zero and they are suppressed rather than shown with their full
// chip count as a join artifact.
func ComputeDeltas(before, after []LeaderboardEntry) []PayoutDelta {
	baseline := make(map[string]int, len(before))
	for _, e := range before {
		baseline[e.PlayerID] = e.Chips
	}

	var deltas []PayoutDelta
	for _, e := range after {
		prev, ok := baseline[e.PlayerID]
		if !ok {
			continue
		}
		if d := e.Chips - prev; d != 0 {
			deltas = append(deltas, PayoutDelta{PlayerID: e.PlayerID, Delta: d})
		}
	}
	return deltas
}
