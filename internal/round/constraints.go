package round

import (
	"fmt"

	"liquidityArena/internal/model"
)

// Constraints bound what a strategy may do in one round. A violation
// zeroes the strategy's score; it never aborts the round.
type Constraints struct {
	MinTickWidth       int
	MaxRebalances      int
	MaxImpermanentLoss float64
}

// DefaultConstraints returns the standard round limits.
func DefaultConstraints() Constraints {
	return Constraints{
		MinTickWidth:       60,
		MaxRebalances:      4,
		MaxImpermanentLoss: 0.10,
	}
}

// CheckPositions validates a proposed position set against the static
// constraints.
func (c Constraints) CheckPositions(positions []model.Position) []string {
	violations := make([]string, 0)
	for i, position := range positions {
		if err := position.Validate(); err != nil {
			violations = append(violations, fmt.Sprintf("position %d: %v", i, err))
			continue
		}
		width := position.TickUpper - position.TickLower
		if width < c.MinTickWidth {
			violations = append(violations, fmt.Sprintf(
				"position %d: tick width %d below minimum %d", i, width, c.MinTickWidth))
		}
	}
	return violations
}

// CheckPerformance validates the simulated outcome against the
// round-level limits.
func (c Constraints) CheckPerformance(impermanentLoss float64, rebalances int) []string {
	violations := make([]string, 0)
	if c.MaxImpermanentLoss > 0 && impermanentLoss > c.MaxImpermanentLoss {
		violations = append(violations, fmt.Sprintf(
			"impermanent loss %.4f exceeds maximum %.4f", impermanentLoss, c.MaxImpermanentLoss))
	}
	if c.MaxRebalances > 0 && rebalances > c.MaxRebalances {
		violations = append(violations, fmt.Sprintf(
			"%d rebalances exceed maximum %d", rebalances, c.MaxRebalances))
	}
	return violations
}
