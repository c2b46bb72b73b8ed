package model

import "math/big"

// PerformanceResult is the outcome of replaying one agent's rebalance
// history against real swap data. All token amounts are raw integer
// units; FeesCollected, InitialValue, and FinalValue are denominated in
// token1 at the relevant price.
type PerformanceResult struct {
	Fees0             *big.Int `json:"fees0"`
	Fees1             *big.Int `json:"fees1"`
	FeesCollected     *big.Int `json:"fees_collected"`
	ImpermanentLoss   float64  `json:"impermanent_loss"`
	InRangeRatio      float64  `json:"in_range_ratio"`
	Amount0Deployed   *big.Int `json:"amount0_deployed"`
	Amount1Deployed   *big.Int `json:"amount1_deployed"`
	Amount0Holdings   *big.Int `json:"amount0_holdings"`
	Amount1Holdings   *big.Int `json:"amount1_holdings"`
	FinalSqrtPriceX96 *big.Int `json:"final_sqrt_price_x96"`
	InitialValue      *big.Int `json:"initial_value"`
	FinalValue        *big.Int `json:"final_value"`

	InitialInventory Inventory `json:"initial_inventory"`
	FinalInventory   Inventory `json:"final_inventory"`
}

// ZeroPerformance is the terminal result for an agent that never acted:
// nothing deployed, the whole inventory idle, no fees, no loss.
func ZeroPerformance(initial Inventory) PerformanceResult {
	return PerformanceResult{
		Fees0:             big.NewInt(0),
		Fees1:             big.NewInt(0),
		FeesCollected:     big.NewInt(0),
		Amount0Deployed:   big.NewInt(0),
		Amount1Deployed:   big.NewInt(0),
		Amount0Holdings:   new(big.Int).Set(initial.Amount0),
		Amount1Holdings:   new(big.Int).Set(initial.Amount1),
		FinalSqrtPriceX96: big.NewInt(0),
		InitialValue:      big.NewInt(0),
		FinalValue:        big.NewInt(0),
		InitialInventory:  initial.Clone(),
		FinalInventory:    initial.Clone(),
	}
}
