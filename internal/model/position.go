package model

import (
	"fmt"
	"math/big"
)

// Position is a single concentrated-liquidity position: a tick range and
// the token amounts allocated to it. Allocations are raw integer token
// units (wei-scale); only what fits the range at the current price is
// actually deployed.
type Position struct {
	TickLower   int      `json:"tick_lower"`
	TickUpper   int      `json:"tick_upper"`
	Allocation0 *big.Int `json:"allocation0"`
	Allocation1 *big.Int `json:"allocation1"`
}

// Validate checks tick ordering, tick domain, and allocation signs.
func (p Position) Validate() error {
	if p.TickUpper <= p.TickLower {
		return &ValidationError{
			Field:  "tick range",
			Reason: fmt.Sprintf("tick_upper %d must be greater than tick_lower %d", p.TickUpper, p.TickLower),
		}
	}
	if p.TickLower < MinTick || p.TickUpper > MaxTick {
		return &ValidationError{
			Field:  "tick range",
			Reason: fmt.Sprintf("[%d, %d] outside [%d, %d]", p.TickLower, p.TickUpper, MinTick, MaxTick),
		}
	}
	if p.Allocation0 == nil || p.Allocation1 == nil {
		return &ValidationError{Field: "allocations", Reason: "allocation0 and allocation1 are required"}
	}
	if p.Allocation0.Sign() < 0 || p.Allocation1.Sign() < 0 {
		return &ValidationError{Field: "allocations", Reason: "negative allocation"}
	}
	if p.Allocation0.Sign() == 0 && p.Allocation1.Sign() == 0 {
		return &ValidationError{Field: "allocations", Reason: "both allocations are zero"}
	}
	return nil
}

// ValidatePositions validates a whole proposal.
func ValidatePositions(positions []Position) error {
	for i, p := range positions {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("position %d: %w", i, err)
		}
	}
	return nil
}

// Tick domain bounds shared with the univ3 math package.
const (
	MinTick = -887272
	MaxTick = 887272
)

// Inventory is the idle token balance available for deployment.
type Inventory struct {
	Amount0 *big.Int `json:"amount0"`
	Amount1 *big.Int `json:"amount1"`
}

// NewInventory builds an inventory from int64 amounts, for fixtures and
// static providers.
func NewInventory(amount0, amount1 int64) Inventory {
	return Inventory{Amount0: big.NewInt(amount0), Amount1: big.NewInt(amount1)}
}

// Clone returns a deep copy so a task can mutate its private ledger.
func (inv Inventory) Clone() Inventory {
	out := Inventory{}
	if inv.Amount0 != nil {
		out.Amount0 = new(big.Int).Set(inv.Amount0)
	}
	if inv.Amount1 != nil {
		out.Amount1 = new(big.Int).Set(inv.Amount1)
	}
	return out
}
