// Package backtest replays a rebalance history against recorded pool
// swaps and measures what the strategy would have earned: fees by
// liquidity share, impermanent loss against a HODL baseline, and final
// holdings marked to the pool's closing price.
package backtest

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"liquidityArena/internal/datasource"
	"liquidityArena/internal/model"
	"liquidityArena/internal/univ3"
)

// Simulator evaluates LP strategies over historical swap data.
type Simulator struct {
	source datasource.DataSource
	logger *zap.Logger
}

// NewSimulator builds a simulator over the given data source.
func NewSimulator(source datasource.DataSource, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{source: source, logger: logger}
}

// EvaluatePerformance simulates the rebalance history over
// [startBlock, endBlock] and returns the resulting performance.
//
// Fees accrue per swap on the input token only, proportional to the
// strategy's share of in-range liquidity, truncated to integer token
// units. Values are expressed in token1 units via the Q192 price.
// An empty history yields a zero result with the inventory untouched.
func (s *Simulator) EvaluatePerformance(
	ctx context.Context,
	pairAddress string,
	history model.RebalanceHistory,
	startBlock, endBlock uint64,
	initialInventory model.Inventory,
	feeRate float64,
) (*model.PerformanceResult, error) {
	if len(history) == 0 {
		zero := model.ZeroPerformance(initialInventory)
		return &zero, nil
	}

	sorted := history.SortedDescending()

	swaps, err := s.source.SwapEvents(ctx, pairAddress, startBlock, endBlock)
	if err != nil {
		return nil, err
	}

	totalFees0 := new(big.Int)
	totalFees1 := new(big.Int)
	inRangeCount := 0

	for _, swap := range swaps {
		positions, err := sorted.ActiveAt(swap.Block)
		if err != nil {
			return nil, err
		}

		inRangeLiquidity := new(big.Int)
		for _, position := range positions {
			sqrtLower, err := univ3.SqrtRatioAtTick(position.TickLower)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", model.ErrInvalidHistory, err)
			}
			sqrtUpper, err := univ3.SqrtRatioAtTick(position.TickUpper)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", model.ErrInvalidHistory, err)
			}

			if sqrtLower.Cmp(swap.SqrtPriceX96) <= 0 && swap.SqrtPriceX96.Cmp(sqrtUpper) <= 0 {
				liquidity, _, _, err := univ3.PositionLiquidityAndUsedAmounts(
					position.TickLower,
					position.TickUpper,
					swap.SqrtPriceX96,
					position.Allocation0,
					position.Allocation1,
				)
				if err != nil {
					return nil, fmt.Errorf("%w: %v", model.ErrInvalidHistory, err)
				}
				inRangeLiquidity.Add(inRangeLiquidity, liquidity)
			}
		}

		if inRangeLiquidity.Sign() > 0 {
			inRangeCount++
		}

		share, err := s.liquidityShare(inRangeLiquidity, swap)
		if err != nil {
			return nil, err
		}

		// Fees are charged on the input token only: the side with a
		// positive signed amount.
		if swap.Amount0 != nil && swap.Amount0.Sign() > 0 {
			totalFees0.Add(totalFees0, feeCut(swap.Amount0, feeRate, share))
		} else if swap.Amount1 != nil && swap.Amount1.Sign() > 0 {
			totalFees1.Add(totalFees1, feeCut(swap.Amount1, feeRate, share))
		}
	}

	finalSqrtPrice, err := s.source.SqrtPriceAtBlock(ctx, pairAddress, endBlock)
	if err != nil {
		return nil, err
	}
	initialSqrtPrice, err := s.source.SqrtPriceAtBlock(ctx, pairAddress, startBlock)
	if err != nil {
		return nil, err
	}

	finalPriceX192 := new(big.Int).Mul(finalSqrtPrice, finalSqrtPrice)
	initialPriceX192 := new(big.Int).Mul(initialSqrtPrice, initialSqrtPrice)

	// Amounts the latest positions actually hold at the final price.
	latest := sorted[0]
	amount0Deployed := new(big.Int)
	amount1Deployed := new(big.Int)
	for _, position := range latest.NewPositions {
		_, used0, used1, err := univ3.PositionLiquidityAndUsedAmounts(
			position.TickLower,
			position.TickUpper,
			finalSqrtPrice,
			position.Allocation0,
			position.Allocation1,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrInvalidHistory, err)
		}
		amount0Deployed.Add(amount0Deployed, used0)
		amount1Deployed.Add(amount1Deployed, used1)
	}

	finalInventory := latest.InventoryAfter

	// HODL baseline: the initial inventory valued at the final price.
	hodlValue := valueInToken1(initialInventory.Amount0, initialInventory.Amount1, finalPriceX192)

	amount0Holdings := new(big.Int).Add(amount0Deployed, finalInventory.Amount0)
	amount1Holdings := new(big.Int).Add(amount1Deployed, finalInventory.Amount1)
	lpValue := valueInToken1(amount0Holdings, amount1Holdings, finalPriceX192)

	feesCollected := valueInToken1(totalFees0, totalFees1, finalPriceX192)
	initialValue := valueInToken1(initialInventory.Amount0, initialInventory.Amount1, initialPriceX192)
	finalValue := new(big.Int).Add(lpValue, feesCollected)

	// Impermanent loss excludes fees and never goes negative.
	impermanentLoss := 0.0
	if hodlValue.Sign() > 0 {
		diff := new(big.Int).Sub(hodlValue, lpValue)
		ratio, _ := new(big.Float).Quo(new(big.Float).SetInt(diff), new(big.Float).SetInt(hodlValue)).Float64()
		if ratio > 0 {
			impermanentLoss = ratio
		}
	}

	inRangeRatio := 0.0
	if len(swaps) > 0 {
		inRangeRatio = float64(inRangeCount) / float64(len(swaps))
	}

	return &model.PerformanceResult{
		Fees0:             totalFees0,
		Fees1:             totalFees1,
		FeesCollected:     feesCollected,
		ImpermanentLoss:   impermanentLoss,
		InRangeRatio:      inRangeRatio,
		Amount0Deployed:   amount0Deployed,
		Amount1Deployed:   amount1Deployed,
		Amount0Holdings:   amount0Holdings,
		Amount1Holdings:   amount1Holdings,
		FinalSqrtPriceX96: finalSqrtPrice,
		InitialValue:      initialValue,
		FinalValue:        finalValue,
		InitialInventory:  initialInventory,
		FinalInventory:    finalInventory,
	}, nil
}

// liquidityShare is the strategy's fraction of the pool's in-range
// liquidity for one swap. The simulated liquidity is added to the
// pool's reported liquidity because it was not actually in the pool.
func (s *Simulator) liquidityShare(ownLiquidity *big.Int, swap model.SwapEvent) (float64, error) {
	if swap.PoolLiquidity == nil {
		return 0, fmt.Errorf("%w: pool liquidity missing for swap at block %d", model.ErrDataUnavailable, swap.Block)
	}

	total := new(big.Int).Add(swap.PoolLiquidity, ownLiquidity)
	if total.Sign() <= 0 {
		s.logger.Warn("non-positive pool liquidity, assuming zero share",
			zap.Uint64("block_number", swap.Block),
			zap.String("pool_liquidity", swap.PoolLiquidity.String()))
		return 0, nil
	}

	share, _ := new(big.Float).Quo(new(big.Float).SetInt(ownLiquidity), new(big.Float).SetInt(total)).Float64()
	if share > 1 {
		share = 1
	}
	if share < 0 {
		share = 0
	}
	return share, nil
}

// feeCut is amount * feeRate * share truncated to integer token units.
func feeCut(amount *big.Int, feeRate, share float64) *big.Int {
	scaled := new(big.Float).SetInt(amount)
	scaled.Mul(scaled, big.NewFloat(feeRate*share))
	cut, _ := scaled.Int(nil)
	return cut
}

// valueInToken1 converts (amount0, amount1) into token1 units at the
// given Q192 price.
func valueInToken1(amount0, amount1, priceX192 *big.Int) *big.Int {
	value := new(big.Int).Mul(amount0, priceX192)
	value.Div(value, univ3.Q192)
	return value.Add(value, amount1)
}
