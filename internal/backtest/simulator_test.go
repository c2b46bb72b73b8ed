package backtest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"liquidityArena/internal/model"
	"liquidityArena/internal/univ3"
)

// fakeSource serves canned swaps and a block -> price map.
type fakeSource struct {
	swaps  []model.SwapEvent
	prices map[uint64]*big.Int
}

func (f *fakeSource) SwapEvents(_ context.Context, _ string, fromBlock, toBlock uint64) ([]model.SwapEvent, error) {
	out := make([]model.SwapEvent, 0, len(f.swaps))
	for _, swap := range f.swaps {
		if swap.Block >= fromBlock && swap.Block <= toBlock {
			out = append(out, swap)
		}
	}
	return out, nil
}

func (f *fakeSource) SqrtPriceAtBlock(_ context.Context, _ string, block uint64) (*big.Int, error) {
	var bestBlock uint64
	var best *big.Int
	for b, price := range f.prices {
		if b <= block && (best == nil || b >= bestBlock) {
			bestBlock = b
			best = price
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no price at block %d", model.ErrDataUnavailable, block)
	}
	return best, nil
}

func (f *fakeSource) LatestBlock(context.Context) (uint64, error) {
	var latest uint64
	for _, swap := range f.swaps {
		if swap.Block > latest {
			latest = swap.Block
		}
	}
	return latest, nil
}

func mustTickPrice(t *testing.T, tick int) *big.Int {
	t.Helper()
	price, err := univ3.SqrtRatioAtTick(tick)
	if err != nil {
		t.Fatalf("sqrt ratio at tick %d: %v", tick, err)
	}
	return price
}

func singleRebalance(block uint64, pos model.Position) model.RebalanceHistory {
	return model.RebalanceHistory{{
		Block:          block,
		NewPositions:   []model.Position{pos},
		InventoryAfter: model.NewInventory(0, 0),
	}}
}

func TestEvaluatePerformanceFlatPrice(t *testing.T) {
	price := mustTickPrice(t, 0)

	source := &fakeSource{
		swaps: []model.SwapEvent{{
			Block:         100,
			SqrtPriceX96:  price,
			Amount0:       big.NewInt(1000),
			Amount1:       big.NewInt(-1000),
			PoolLiquidity: big.NewInt(1000000),
		}},
		prices: map[uint64]*big.Int{0: price, 100: price, 200: price},
	}

	sim := NewSimulator(source, nil)
	pos := model.Position{
		TickLower:   -100,
		TickUpper:   100,
		Allocation0: big.NewInt(100000),
		Allocation1: big.NewInt(100000),
	}

	result, err := sim.EvaluatePerformance(context.Background(), "0x123",
		singleRebalance(0, pos), 0, 200, model.NewInventory(100000, 100000), 0.003)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Fees0.Sign() <= 0 {
		t.Fatalf("fees0 = %s, want > 0", result.Fees0)
	}
	if result.Fees1.Sign() != 0 {
		t.Fatalf("fees1 = %s, want 0", result.Fees1)
	}
	if result.ImpermanentLoss >= 1e-4 {
		t.Fatalf("impermanent loss = %v, want < 1e-4 at flat price", result.ImpermanentLoss)
	}
	if result.Amount0Deployed.Sign() <= 0 || result.Amount1Deployed.Sign() <= 0 {
		t.Fatalf("deployed = (%s, %s), want both > 0", result.Amount0Deployed, result.Amount1Deployed)
	}
	if result.InRangeRatio != 1.0 {
		t.Fatalf("in-range ratio = %v, want 1.0", result.InRangeRatio)
	}
}

func TestEvaluatePerformancePriceMovesUp(t *testing.T) {
	initialPrice := mustTickPrice(t, 0)
	finalPrice := mustTickPrice(t, 100)

	source := &fakeSource{
		swaps: []model.SwapEvent{{
			Block:         100,
			SqrtPriceX96:  finalPrice,
			Amount0:       big.NewInt(-1000),
			Amount1:       big.NewInt(2000),
			PoolLiquidity: big.NewInt(1000000),
		}},
		prices: map[uint64]*big.Int{0: initialPrice, 200: finalPrice},
	}

	sim := NewSimulator(source, nil)
	pos := model.Position{
		TickLower:   -100,
		TickUpper:   200,
		Allocation0: big.NewInt(100000),
		Allocation1: big.NewInt(100000),
	}

	result, err := sim.EvaluatePerformance(context.Background(), "0x123",
		singleRebalance(0, pos), 0, 200, model.NewInventory(100000, 100000), 0.003)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Fees1.Sign() <= 0 {
		t.Fatalf("fees1 = %s, want > 0", result.Fees1)
	}
	if result.Fees0.Sign() != 0 {
		t.Fatalf("fees0 = %s, want 0", result.Fees0)
	}
	if result.ImpermanentLoss < 0 {
		t.Fatalf("impermanent loss = %v, want >= 0", result.ImpermanentLoss)
	}
}

func TestEvaluatePerformanceOutOfRangeEarnsNothing(t *testing.T) {
	price := mustTickPrice(t, 0)

	source := &fakeSource{
		swaps: []model.SwapEvent{{
			Block:         100,
			SqrtPriceX96:  price,
			Amount0:       big.NewInt(1000),
			Amount1:       big.NewInt(-1000),
			PoolLiquidity: big.NewInt(1000000),
		}},
		prices: map[uint64]*big.Int{0: price, 200: price},
	}

	sim := NewSimulator(source, nil)
	// Range entirely above the current price.
	pos := model.Position{
		TickLower:   1000,
		TickUpper:   2000,
		Allocation0: big.NewInt(100000),
		Allocation1: big.NewInt(100000),
	}

	result, err := sim.EvaluatePerformance(context.Background(), "0x123",
		singleRebalance(0, pos), 0, 200, model.NewInventory(100000, 100000), 0.003)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Fees0.Sign() != 0 || result.Fees1.Sign() != 0 {
		t.Fatalf("fees = (%s, %s), want (0, 0) out of range", result.Fees0, result.Fees1)
	}
	if result.InRangeRatio != 0 {
		t.Fatalf("in-range ratio = %v, want 0", result.InRangeRatio)
	}
}

func TestEvaluatePerformanceNarrowRangeLowersInRangeRatio(t *testing.T) {
	// Price walks upward across five swaps; a narrow range drops out
	// after the second one while a wide range covers the whole walk.
	ticks := []int{0, 100, 200, 400, 800}
	swaps := make([]model.SwapEvent, 0, len(ticks))
	prices := map[uint64]*big.Int{0: mustTickPrice(t, 0)}
	for i, tick := range ticks {
		block := uint64(100 * (i + 1))
		price := mustTickPrice(t, tick)
		swaps = append(swaps, model.SwapEvent{
			Block:         block,
			SqrtPriceX96:  price,
			Amount0:       big.NewInt(-1000),
			Amount1:       big.NewInt(2000),
			PoolLiquidity: big.NewInt(1000000),
		})
		prices[block] = price
	}
	prices[600] = mustTickPrice(t, 800)

	sim := NewSimulator(&fakeSource{swaps: swaps, prices: prices}, nil)

	run := func(lower, upper int) float64 {
		t.Helper()
		pos := model.Position{
			TickLower:   lower,
			TickUpper:   upper,
			Allocation0: big.NewInt(100000),
			Allocation1: big.NewInt(100000),
		}
		result, err := sim.EvaluatePerformance(context.Background(), "0x123",
			singleRebalance(0, pos), 0, 600, model.NewInventory(100000, 100000), 0.003)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return result.InRangeRatio
	}

	wide := run(-1000, 1000)
	narrow := run(-180, 180)

	if wide != 1.0 {
		t.Fatalf("wide in-range ratio = %v, want 1.0", wide)
	}
	if narrow >= wide {
		t.Fatalf("narrow in-range ratio = %v, want < wide %v", narrow, wide)
	}
	if want := 2.0 / 5.0; narrow != want {
		t.Fatalf("narrow in-range ratio = %v, want %v", narrow, want)
	}
}

func TestEvaluatePerformanceEmptyHistory(t *testing.T) {
	sim := NewSimulator(&fakeSource{}, nil)

	result, err := sim.EvaluatePerformance(context.Background(), "0x123",
		nil, 0, 200, model.NewInventory(5000, 7000), 0.003)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.FeesCollected.Sign() != 0 {
		t.Fatalf("fees collected = %s, want 0", result.FeesCollected)
	}
	if result.Amount0Holdings.Cmp(big.NewInt(5000)) != 0 || result.Amount1Holdings.Cmp(big.NewInt(7000)) != 0 {
		t.Fatalf("holdings = (%s, %s), want initial inventory", result.Amount0Holdings, result.Amount1Holdings)
	}
}

func TestEvaluatePerformanceSwapBeforeFirstRebalance(t *testing.T) {
	price := mustTickPrice(t, 0)

	source := &fakeSource{
		swaps: []model.SwapEvent{{
			Block:         50,
			SqrtPriceX96:  price,
			Amount0:       big.NewInt(1000),
			Amount1:       big.NewInt(-1000),
			PoolLiquidity: big.NewInt(1000000),
		}},
		prices: map[uint64]*big.Int{0: price, 200: price},
	}

	sim := NewSimulator(source, nil)
	pos := model.Position{
		TickLower:   -100,
		TickUpper:   100,
		Allocation0: big.NewInt(100000),
		Allocation1: big.NewInt(100000),
	}

	_, err := sim.EvaluatePerformance(context.Background(), "0x123",
		singleRebalance(100, pos), 0, 200, model.NewInventory(100000, 100000), 0.003)
	if !errors.Is(err, model.ErrInvalidHistory) {
		t.Fatalf("expected ErrInvalidHistory, got %v", err)
	}
}

func TestEvaluatePerformanceMissingPrice(t *testing.T) {
	price := mustTickPrice(t, 0)

	source := &fakeSource{
		swaps:  nil,
		prices: map[uint64]*big.Int{100: price},
	}

	sim := NewSimulator(source, nil)
	pos := model.Position{
		TickLower:   -100,
		TickUpper:   100,
		Allocation0: big.NewInt(100000),
		Allocation1: big.NewInt(100000),
	}

	// No price at the start block: the simulation must fail rather
	// than assume one.
	_, err := sim.EvaluatePerformance(context.Background(), "0x123",
		singleRebalance(100, pos), 0, 200, model.NewInventory(100000, 100000), 0.003)
	if !errors.Is(err, model.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}
