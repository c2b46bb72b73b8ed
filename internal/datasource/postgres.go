package datasource

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquidityArena/internal/model"
)

// PostgresSource serves market data from a pool_swaps archive table,
// used for replaying historical rounds without a chain endpoint.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource connects to the archive database.
func NewPostgresSource(ctx context.Context, dsn string) (*PostgresSource, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresSource{pool: pool}, nil
}

func (s *PostgresSource) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// SwapEvents returns archived swaps for the pool in [fromBlock, toBlock].
func (s *PostgresSource) SwapEvents(ctx context.Context, pairAddress string, fromBlock, toBlock uint64) ([]model.SwapEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT block_number, log_index, amount0::text, amount1::text, sqrt_price_x96::text, pool_liquidity::text
		FROM pool_swaps
		WHERE pair_address = $1 AND block_number BETWEEN $2 AND $3
		ORDER BY block_number ASC, log_index ASC
	`, strings.ToLower(pairAddress), int64(fromBlock), int64(toBlock))
	if err != nil {
		return nil, fmt.Errorf("%w: query swaps: %v", model.ErrDataUnavailable, err)
	}
	defer rows.Close()

	events := make([]model.SwapEvent, 0)
	for rows.Next() {
		var (
			blockNumber int64
			logIndex    int64
			amount0     string
			amount1     string
			sqrtPrice   string
			liquidity   string
		)
		if err := rows.Scan(&blockNumber, &logIndex, &amount0, &amount1, &sqrtPrice, &liquidity); err != nil {
			return nil, err
		}

		event := model.SwapEvent{
			Block:    uint64(blockNumber),
			LogIndex: uint(logIndex),
		}
		if event.Amount0, err = parseBig(amount0, "amount0"); err != nil {
			return nil, err
		}
		if event.Amount1, err = parseBig(amount1, "amount1"); err != nil {
			return nil, err
		}
		if event.SqrtPriceX96, err = parseBig(sqrtPrice, "sqrt_price_x96"); err != nil {
			return nil, err
		}
		if event.PoolLiquidity, err = parseBig(liquidity, "pool_liquidity"); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// SqrtPriceAtBlock returns the price of the last archived swap at or
// before the given block.
func (s *PostgresSource) SqrtPriceAtBlock(ctx context.Context, pairAddress string, block uint64) (*big.Int, error) {
	var sqrtPrice string
	row := s.pool.QueryRow(ctx, `
		SELECT sqrt_price_x96::text
		FROM pool_swaps
		WHERE pair_address = $1 AND block_number <= $2
		ORDER BY block_number DESC, log_index DESC
		LIMIT 1
	`, strings.ToLower(pairAddress), int64(block))
	if err := row.Scan(&sqrtPrice); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no archived price for %s at block %d", model.ErrDataUnavailable, pairAddress, block)
		}
		return nil, err
	}
	return parseBig(sqrtPrice, "sqrt_price_x96")
}

// LatestBlock returns the highest archived block.
func (s *PostgresSource) LatestBlock(ctx context.Context) (uint64, error) {
	var latest *int64
	row := s.pool.QueryRow(ctx, `SELECT MAX(block_number) FROM pool_swaps`)
	if err := row.Scan(&latest); err != nil {
		return 0, err
	}
	if latest == nil {
		return 0, fmt.Errorf("%w: swap archive is empty", model.ErrDataUnavailable)
	}
	return uint64(*latest), nil
}

func parseBig(value, column string) (*big.Int, error) {
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s value: %s", column, value)
	}
	return parsed, nil
}
