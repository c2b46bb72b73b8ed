package scoring

import "liquidityArena/internal/model"

// EMA smoothing and blend weights for agent reputation. Evaluation
// history moves slowly; live results are weighted harder because they
// carry real execution risk.
const (
	evalKeep = 0.9
	evalMix  = 0.1
	liveKeep = 0.7
	liveMix  = 0.3

	combinedEvalWeight = 0.6
	combinedLiveWeight = 0.4

	// MinParticipationDays is the distinct-day participation floor for
	// live-round eligibility, measured over the trailing week.
	MinParticipationDays = 7
)

// CombinedScore blends the two EMAs into the ranking reputation.
func CombinedScore(evaluationScore, liveScore float64) float64 {
	return combinedEvalWeight*evaluationScore + combinedLiveWeight*liveScore
}

// ApplyEvaluationSample folds one evaluation-round score into the
// agent's reputation.
func ApplyEvaluationSample(score model.AgentScore, sample float64) model.AgentScore {
	score.EvaluationScore = evalKeep*score.EvaluationScore + evalMix*sample
	score.CombinedScore = CombinedScore(score.EvaluationScore, score.LiveScore)
	score.TotalEvaluations++
	return score
}

// ApplyLiveSample folds one live-round score into the agent's
// reputation.
func ApplyLiveSample(score model.AgentScore, sample float64) model.AgentScore {
	score.LiveScore = liveKeep*score.LiveScore + liveMix*sample
	score.CombinedScore = CombinedScore(score.EvaluationScore, score.LiveScore)
	score.TotalLiveRounds++
	return score
}

// LiveEligible reports whether the distinct participation-day count
// meets the live-round floor.
func LiveEligible(participationDays int) bool {
	return participationDays >= MinParticipationDays
}
