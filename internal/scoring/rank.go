package scoring

import "sort"

// RankedAgent is one entry of a round ranking.
type RankedAgent struct {
	AgentID string
	Score   float64
}

// RankByScoreAndHistory sorts agents best-first by round score, then
// by historic combined score, then by agent id so the order is fully
// deterministic. Historic scores must be the values from before this
// round's reputation update; that keeps tie-breaking independent of
// the order updates are applied in.
func RankByScoreAndHistory(roundScores, historicScores map[string]float64) []RankedAgent {
	ranked := make([]RankedAgent, 0, len(roundScores))
	for agentID, score := range roundScores {
		ranked = append(ranked, RankedAgent{AgentID: agentID, Score: score})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		hi := historicScores[ranked[i].AgentID]
		hj := historicScores[ranked[j].AgentID]
		if hi != hj {
			return hi > hj
		}
		return ranked[i].AgentID < ranked[j].AgentID
	})
	return ranked
}
