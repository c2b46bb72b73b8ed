// Package scoring turns simulated performance into scalar scores,
// ranks agents with reputation-aware tie-breaking, and maintains
// per-agent EMA reputation across rounds.
package scoring

import (
	"math"
	"math/big"

	"liquidityArena/internal/model"
)

const (
	// DefaultLossPenalty is the exponent multiplier k in exp(-k*loss).
	DefaultLossPenalty = 10.0
	// DefaultInRangeWeight blends the in-range bonus into the score.
	DefaultInRangeWeight = 0.08
	// DefaultRatioExponent shapes the target-ratio penalty curve.
	DefaultRatioExponent = 2.0
	// DefaultFeeWeight weights collected fees in the ratio-and-fee policy.
	DefaultFeeWeight = 0.1
)

// Scorer converts performance results into scores under a job's policy.
type Scorer struct {
	LossPenaltyMultiplier float64
	InRangeWeight         float64
	RatioExponent         float64
	FeeWeight             float64
}

// NewScorer returns a scorer with the default tuning.
func NewScorer() *Scorer {
	return &Scorer{
		LossPenaltyMultiplier: DefaultLossPenalty,
		InRangeWeight:         DefaultInRangeWeight,
		RatioExponent:         DefaultRatioExponent,
		FeeWeight:             DefaultFeeWeight,
	}
}

// Score evaluates a performance result under the job's scoring policy.
func (s *Scorer) Score(job model.Job, result *model.PerformanceResult) float64 {
	switch job.Policy {
	case model.PolicyRatioAndFee:
		return s.scoreRatioAndFee(job, result)
	default:
		return s.scoreValueLossPenalty(result)
	}
}

// scoreValueLossPenalty scores the relative return against the HODL
// baseline, dampening gains and amplifying losses by impermanent loss.
func (s *Scorer) scoreValueLossPenalty(result *model.PerformanceResult) float64 {
	if result == nil || result.InitialValue == nil || result.FinalValue == nil {
		return math.Inf(-1)
	}
	if result.InitialValue.Sign() <= 0 {
		return math.Inf(-1)
	}

	initialValue, _ := new(big.Float).SetInt(result.InitialValue).Float64()
	finalValue, _ := new(big.Float).SetInt(result.FinalValue).Float64()

	returnPct := (finalValue - initialValue) / initialValue
	if returnPct > 10 {
		returnPct = 10
	}
	if returnPct < -10 {
		returnPct = -10
	}

	lossRatio := s.lossRatio(result)
	penalty := math.Exp(-s.LossPenaltyMultiplier * lossRatio)

	var score float64
	if returnPct >= 0 {
		score = returnPct * penalty
	} else if penalty > 0 {
		score = returnPct / penalty
	} else {
		score = returnPct
	}

	if s.InRangeWeight > 0 {
		ratio := result.InRangeRatio
		if ratio < 0 {
			ratio = 0
		}
		if ratio > 1 {
			ratio = 1
		}
		score *= (1 - s.InRangeWeight) + s.InRangeWeight*ratio
	}

	return score
}

// scoreRatioAndFee scores the mark-to-market value weighted by how far
// the final token split drifted from the job's target ratio, plus a
// fee bonus. Values stay in raw token1 units; only the ratio itself is
// decimal-normalized.
func (s *Scorer) scoreRatioAndFee(job model.Job, result *model.PerformanceResult) float64 {
	if result == nil || result.FinalValue == nil {
		return math.Inf(-1)
	}

	markToMarket, _ := new(big.Float).SetInt(result.FinalValue).Float64()
	feeValue := 0.0
	if result.FeesCollected != nil {
		feeValue, _ = new(big.Float).SetInt(result.FeesCollected).Float64()
	}

	penalty := 1.0
	actual := holdingsRatio(result, job.Decimals0, job.Decimals1)
	if job.TargetRatio > 0 {
		exponent := s.RatioExponent
		if exponent <= 0 {
			exponent = DefaultRatioExponent
		}
		drift := math.Abs(actual-job.TargetRatio) / job.TargetRatio
		penalty = 1 / (1 + math.Pow(drift, exponent))
	} else if actual != 0 {
		// A target of zero token0 is only satisfiable exactly; any
		// residual token0 holdings disqualify the strategy.
		return math.Inf(-1)
	}

	return markToMarket*penalty + s.FeeWeight*feeValue
}

// lossRatio prefers impermanent loss and falls back to the largest
// relative per-token shortfall between initial and final inventory.
func (s *Scorer) lossRatio(result *model.PerformanceResult) float64 {
	if result.ImpermanentLoss > 0 {
		return result.ImpermanentLoss
	}

	loss := 0.0
	loss = math.Max(loss, tokenShortfall(result.InitialInventory.Amount0, result.FinalInventory.Amount0))
	loss = math.Max(loss, tokenShortfall(result.InitialInventory.Amount1, result.FinalInventory.Amount1))
	return loss
}

func tokenShortfall(initial, final *big.Int) float64 {
	if initial == nil || final == nil || initial.Sign() <= 0 {
		return 0
	}
	diff := new(big.Int).Sub(initial, final)
	if diff.Sign() <= 0 {
		return 0
	}
	ratio, _ := new(big.Float).Quo(new(big.Float).SetInt(diff), new(big.Float).SetInt(initial)).Float64()
	return ratio
}

// holdingsRatio is the token0 fraction of total holdings on
// human-normalized token counts.
func holdingsRatio(result *model.PerformanceResult, decimals0, decimals1 int) float64 {
	normalized0 := normalize(result.Amount0Holdings, decimals0)
	normalized1 := normalize(result.Amount1Holdings, decimals1)
	total := normalized0 + normalized1
	if total <= 0 {
		return 0
	}
	return normalized0 / total
}

func normalize(amount *big.Int, decimals int) float64 {
	if amount == nil {
		return 0
	}
	value, _ := new(big.Float).Quo(
		new(big.Float).SetInt(amount),
		new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)),
	).Float64()
	return value
}
