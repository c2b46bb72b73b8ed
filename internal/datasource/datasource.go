// Package datasource provides read access to pool market data: swap
// events, pool prices at specific blocks, and chain head tracking.
// Implementations exist for a live EVM endpoint and for a Postgres
// archive of previously indexed swaps.
package datasource

import (
	"context"
	"math/big"

	"liquidityArena/internal/model"
)

// DataSource answers the market-data queries the simulator and the
// round orchestrator need. A missing price or unreadable swap range is
// reported as an error wrapping model.ErrDataUnavailable; callers
// never receive fabricated fallback values.
type DataSource interface {
	// SwapEvents returns pool swaps in [fromBlock, toBlock], ordered by
	// (block, log index) ascending.
	SwapEvents(ctx context.Context, pairAddress string, fromBlock, toBlock uint64) ([]model.SwapEvent, error)

	// SqrtPriceAtBlock returns the pool sqrtPriceX96 as of the given block.
	SqrtPriceAtBlock(ctx context.Context, pairAddress string, block uint64) (*big.Int, error)

	// LatestBlock returns the most recent block the source knows about.
	LatestBlock(ctx context.Context) (uint64, error)
}
