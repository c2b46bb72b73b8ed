package model

import "math/big"

// SwapEvent is one historical pool swap. Amounts are signed from the
// pool's perspective: a positive amount is the input token the trader
// paid in, a negative amount the output token they received.
// PoolLiquidity is the in-range liquidity the pool reported for the
// swap, which excludes any simulated position.
type SwapEvent struct {
	Block         uint64   `json:"block"`
	LogIndex      uint     `json:"log_index"`
	SqrtPriceX96  *big.Int `json:"sqrt_price_x96"`
	Amount0       *big.Int `json:"amount0"`
	Amount1       *big.Int `json:"amount1"`
	PoolLiquidity *big.Int `json:"pool_liquidity"`
}
