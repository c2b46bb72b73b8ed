package scoring

import (
	"math"
	"math/big"
	"testing"

	"liquidityArena/internal/model"
)

func perfResult(initial, final int64, il, inRange float64) *model.PerformanceResult {
	return &model.PerformanceResult{
		InitialValue:     big.NewInt(initial),
		FinalValue:       big.NewInt(final),
		FeesCollected:    big.NewInt(0),
		ImpermanentLoss:  il,
		InRangeRatio:     inRange,
		Amount0Holdings:  big.NewInt(0),
		Amount1Holdings:  big.NewInt(0),
		InitialInventory: model.NewInventory(0, 0),
		FinalInventory:   model.NewInventory(0, 0),
	}
}

func TestScoreValueLossPenaltyPositiveReturn(t *testing.T) {
	scorer := NewScorer()
	job := model.Job{Policy: model.PolicyValueLossPenalty}

	result := perfResult(100000, 105000, 0, 1.0)
	got := scorer.Score(job, result)

	// +5% return, no loss, full in-range: the bonus multiplier is 1.
	want := 0.05
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("score = %v, want %v", got, want)
	}
}

func TestScoreValueLossPenaltyAmplifiesLosses(t *testing.T) {
	scorer := NewScorer()
	job := model.Job{Policy: model.PolicyValueLossPenalty}

	withLoss := scorer.Score(job, perfResult(100000, 95000, 0.05, 1.0))
	noLoss := scorer.Score(job, perfResult(100000, 95000, 0, 1.0))

	if withLoss >= noLoss {
		t.Fatalf("loss penalty should push negative score down: %v >= %v", withLoss, noLoss)
	}
}

func TestScoreValueLossPenaltyInRangeBonus(t *testing.T) {
	scorer := NewScorer()
	job := model.Job{Policy: model.PolicyValueLossPenalty}

	full := scorer.Score(job, perfResult(100000, 110000, 0, 1.0))
	half := scorer.Score(job, perfResult(100000, 110000, 0, 0.5))

	if half >= full {
		t.Fatalf("lower in-range ratio should score lower: %v >= %v", half, full)
	}
}

func TestScoreNonPositiveInitialValue(t *testing.T) {
	scorer := NewScorer()
	job := model.Job{Policy: model.PolicyValueLossPenalty}

	if got := scorer.Score(job, perfResult(0, 100, 0, 1.0)); !math.IsInf(got, -1) {
		t.Fatalf("score = %v, want -Inf for zero initial value", got)
	}
	if got := scorer.Score(job, nil); !math.IsInf(got, -1) {
		t.Fatalf("score = %v, want -Inf for missing result", got)
	}
}

func TestScoreRatioAndFee(t *testing.T) {
	scorer := NewScorer()
	job := model.Job{Policy: model.PolicyRatioAndFee, TargetRatio: 0.5, Decimals0: 18, Decimals1: 18}

	onTarget := &model.PerformanceResult{
		FinalValue:      big.NewInt(100000),
		FeesCollected:   big.NewInt(500),
		Amount0Holdings: big.NewInt(50000),
		Amount1Holdings: big.NewInt(50000),
	}
	drifted := &model.PerformanceResult{
		FinalValue:      big.NewInt(100000),
		FeesCollected:   big.NewInt(500),
		Amount0Holdings: big.NewInt(90000),
		Amount1Holdings: big.NewInt(10000),
	}

	scoreOnTarget := scorer.Score(job, onTarget)
	scoreDrifted := scorer.Score(job, drifted)

	if scoreDrifted >= scoreOnTarget {
		t.Fatalf("drifted ratio should score lower: %v >= %v", scoreDrifted, scoreOnTarget)
	}

	// On-target holdings take no penalty: value plus weighted fees.
	want := 100000.0 + DefaultFeeWeight*500.0
	if math.Abs(scoreOnTarget-want) > 1e-9 {
		t.Fatalf("on-target score = %v, want %v", scoreOnTarget, want)
	}
}

func TestScoreRatioAndFeeZeroTarget(t *testing.T) {
	scorer := NewScorer()
	job := model.Job{Policy: model.PolicyRatioAndFee, TargetRatio: 0, Decimals0: 18, Decimals1: 18}

	// Residual token0 against a zero target disqualifies the strategy.
	residual := &model.PerformanceResult{
		FinalValue:      big.NewInt(100000),
		FeesCollected:   big.NewInt(500),
		Amount0Holdings: big.NewInt(1),
		Amount1Holdings: big.NewInt(99999),
	}
	if got := scorer.Score(job, residual); !math.IsInf(got, -1) {
		t.Fatalf("score with residual token0 = %v, want -Inf", got)
	}

	allToken1 := &model.PerformanceResult{
		FinalValue:      big.NewInt(100000),
		FeesCollected:   big.NewInt(500),
		Amount0Holdings: big.NewInt(0),
		Amount1Holdings: big.NewInt(100000),
	}
	got := scorer.Score(job, allToken1)
	want := 100000.0 + DefaultFeeWeight*500.0
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("all-token1 score = %v, want %v", got, want)
	}
}

func TestRankByScoreAndHistoryTieBreak(t *testing.T) {
	roundScores := map[string]float64{"a": 0.1, "b": 0.1, "c": 0.1}
	historic := map[string]float64{"a": 0.3, "b": 0.8, "c": 0.5}

	ranked := RankByScoreAndHistory(roundScores, historic)
	if len(ranked) != 3 {
		t.Fatalf("ranked %d agents, want 3", len(ranked))
	}
	if ranked[0].AgentID != "b" || ranked[1].AgentID != "c" || ranked[2].AgentID != "a" {
		t.Fatalf("order = %v, want b, c, a", ranked)
	}
}

func TestRankDeterministicWithoutHistory(t *testing.T) {
	roundScores := map[string]float64{"z": 1.0, "a": 1.0, "m": 1.0}

	ranked := RankByScoreAndHistory(roundScores, nil)
	if ranked[0].AgentID != "a" || ranked[1].AgentID != "m" || ranked[2].AgentID != "z" {
		t.Fatalf("order = %v, want agent id ascending", ranked)
	}
}

func TestApplyEvaluationSample(t *testing.T) {
	score := model.AgentScore{EvaluationScore: 0.5}
	updated := ApplyEvaluationSample(score, 1.0)

	if math.Abs(updated.EvaluationScore-0.55) > 1e-12 {
		t.Fatalf("evaluation EMA = %v, want 0.55", updated.EvaluationScore)
	}
	if updated.TotalEvaluations != 1 {
		t.Fatalf("total evaluations = %d, want 1", updated.TotalEvaluations)
	}
	wantCombined := CombinedScore(0.55, 0)
	if math.Abs(updated.CombinedScore-wantCombined) > 1e-12 {
		t.Fatalf("combined = %v, want %v", updated.CombinedScore, wantCombined)
	}
}

func TestApplyLiveSample(t *testing.T) {
	score := model.AgentScore{EvaluationScore: 0.5, LiveScore: 0.2}
	updated := ApplyLiveSample(score, 1.0)

	if math.Abs(updated.LiveScore-0.44) > 1e-12 {
		t.Fatalf("live EMA = %v, want 0.44", updated.LiveScore)
	}
	if updated.TotalLiveRounds != 1 {
		t.Fatalf("total live rounds = %d, want 1", updated.TotalLiveRounds)
	}
}

func TestLiveEligible(t *testing.T) {
	if LiveEligible(6) {
		t.Fatalf("6 participation days should not be eligible")
	}
	if !LiveEligible(7) {
		t.Fatalf("7 participation days should be eligible")
	}
}
