// internal/game/scoring.go
package game

// RoundScores computes the points earned in the current round from the
// recorded votes, keyed by player id. A vote for the correct definition awards
// the voter one point; a vote for a fake definition awards its author one
// point per vote received. Every vote distributes exactly one point, so the
// total awarded always equals the number of votes cast.
func (l *Lobby) RoundScores() map[string]int {
	scores := make(map[string]int, len(l.Players))
	for _, p := range l.Players {
		scores[p.ID] = 0
	}
	for _, v := range l.Votes {
		def := l.FindDefinition(v.DefinitionID)
		if def == nil {
			continue
		}
		if def.IsCorrect {
			scores[v.PlayerID]++
		} else {
			scores[def.PlayerID]++
		}
	}
	return scores
}

// ApplyRoundScores folds the current round's scores into the players' running
// totals. Scores only ever accumulate; absence merely forfeits points.
func (l *Lobby) ApplyRoundScores() {
	round := l.RoundScores()
	for _, p := range l.Players {
		p.Score += round[p.ID]
	}
}

// SetScores installs absolute score values by player id, used when a client
// controller pushes the totals it computed at phase expiry. Ids with no
// matching seat are ignored; seats not mentioned keep their score. The values
// are absolute, so duplicate pushes computed from the same snapshot are
// idempotent.
func (l *Lobby) SetScores(scores map[string]int) {
	for _, p := range l.Players {
		if s, ok := scores[p.ID]; ok {
			p.Score = s
		}
	}
}

// ScoreSnapshot computes what each player's total would be after folding in
// the current round, without mutating the lobby. Controllers use this on their
// mirror to build an updateScores action.
func ScoreSnapshot(snap Snapshot) map[string]int {
	round := make(map[string]int, len(snap.Players))
	byID := make(map[string]Definition, len(snap.Definitions))
	for _, d := range snap.Definitions {
		byID[d.ID] = d
	}
	for _, v := range snap.Votes {
		d, ok := byID[v.DefinitionID]
		if !ok {
			continue
		}
		if d.IsCorrect {
			round[v.PlayerID]++
		} else {
			round[d.PlayerID]++
		}
	}
	totals := make(map[string]int, len(snap.Players))
	for _, p := range snap.Players {
		totals[p.ID] = p.Score + round[p.ID]
	}
	return totals
}
