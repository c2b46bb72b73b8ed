package univ3

import "math/big"

func liquidityFromAmount0(amount0, sqrtA, sqrtB *big.Int) *big.Int {
	// amount0 * sqrtA * sqrtB / ((sqrtB - sqrtA) * Q96)
	num := new(big.Int).Mul(amount0, sqrtA)
	num.Mul(num, sqrtB)
	den := new(big.Int).Sub(sqrtB, sqrtA)
	den.Mul(den, Q96)
	return num.Div(num, den)
}

func liquidityFromAmount1(amount1, sqrtA, sqrtB *big.Int) *big.Int {
	// amount1 * Q96 / (sqrtB - sqrtA)
	num := new(big.Int).Mul(amount1, Q96)
	den := new(big.Int).Sub(sqrtB, sqrtA)
	return num.Div(num, den)
}

// LiquidityForAmounts returns the maximal liquidity mintable from the
// given token amounts at the current price, one of the three classic
// branches depending on where sqrtP sits relative to the range.
func LiquidityForAmounts(sqrtP, sqrtA, sqrtB, amount0, amount1 *big.Int) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}

	switch {
	case sqrtP.Cmp(sqrtA) <= 0:
		return liquidityFromAmount0(amount0, sqrtA, sqrtB)
	case sqrtP.Cmp(sqrtB) < 0:
		l0 := liquidityFromAmount0(amount0, sqrtP, sqrtB)
		l1 := liquidityFromAmount1(amount1, sqrtA, sqrtP)
		if l0.Cmp(l1) < 0 {
			return l0
		}
		return l1
	default:
		return liquidityFromAmount1(amount1, sqrtA, sqrtB)
	}
}

// AmountsForLiquidity is the inverse of LiquidityForAmounts: the token
// amounts a position of the given liquidity holds at the current price.
func AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity *big.Int) (amount0, amount1 *big.Int) {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	if liquidity.Sign() <= 0 {
		return new(big.Int), new(big.Int)
	}

	switch {
	case sqrtP.Cmp(sqrtA) <= 0:
		// L * (sqrtB - sqrtA) * Q96 / (sqrtA * sqrtB)
		num := new(big.Int).Sub(sqrtB, sqrtA)
		num.Mul(num, liquidity)
		num.Mul(num, Q96)
		den := new(big.Int).Mul(sqrtA, sqrtB)
		return num.Div(num, den), new(big.Int)
	case sqrtP.Cmp(sqrtB) < 0:
		num := new(big.Int).Sub(sqrtB, sqrtP)
		num.Mul(num, liquidity)
		num.Mul(num, Q96)
		den := new(big.Int).Mul(sqrtP, sqrtB)
		amount0 = num.Div(num, den)
		amount1 = new(big.Int).Sub(sqrtP, sqrtA)
		amount1.Mul(amount1, liquidity)
		amount1.Div(amount1, Q96)
		return amount0, amount1
	default:
		amount1 = new(big.Int).Sub(sqrtB, sqrtA)
		amount1.Mul(amount1, liquidity)
		amount1.Div(amount1, Q96)
		return new(big.Int), amount1
	}
}

// PositionLiquidityAndUsedAmounts resolves a tick-range position
// against the current pool price: the liquidity it mints and the exact
// amounts that liquidity consumes. Leftover allocation stays idle.
func PositionLiquidityAndUsedAmounts(tickLower, tickUpper int, sqrtPriceX96, amount0, amount1 *big.Int) (liquidity, used0, used1 *big.Int, err error) {
	sqrtA, err := SqrtRatioAtTick(tickLower)
	if err != nil {
		return nil, nil, nil, err
	}
	sqrtB, err := SqrtRatioAtTick(tickUpper)
	if err != nil {
		return nil, nil, nil, err
	}

	liquidity = LiquidityForAmounts(sqrtPriceX96, sqrtA, sqrtB, amount0, amount1)
	used0, used1 = AmountsForLiquidity(sqrtPriceX96, sqrtA, sqrtB, liquidity)
	return liquidity, used0, used1, nil
}
