package datasource

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"liquidityArena/internal/chain"
	"liquidityArena/internal/dex"
	"liquidityArena/internal/model"
)

// EVMConfig holds runtime settings for the EVM data source.
type EVMConfig struct {
	BatchSize    uint64
	MaxAttempts  int
	RetryBackoff time.Duration
}

// EVMSource reads swaps and prices straight from a chain endpoint.
type EVMSource struct {
	cfg     EVMConfig
	chain   *chain.Client
	decoder *dex.SwapDecoder
	logger  *zap.Logger
}

// NewEVMSource builds an EVM-backed data source.
func NewEVMSource(cfg EVMConfig, chainClient *chain.Client, logger *zap.Logger) (*EVMSource, error) {
	if chainClient == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 2000
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	decoder, err := dex.NewSwapDecoder()
	if err != nil {
		return nil, err
	}

	return &EVMSource{
		cfg:     cfg,
		chain:   chainClient,
		decoder: decoder,
		logger:  logger,
	}, nil
}

// SwapEvents returns decoded Swap logs for the pool in [fromBlock, toBlock].
func (s *EVMSource) SwapEvents(ctx context.Context, pairAddress string, fromBlock, toBlock uint64) ([]model.SwapEvent, error) {
	if !common.IsHexAddress(pairAddress) {
		return nil, fmt.Errorf("invalid pair address: %s", pairAddress)
	}
	pool := common.HexToAddress(pairAddress)

	ranges, err := SplitRange(fromBlock, toBlock, s.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	events := make([]model.SwapEvent, 0)
	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		logs, err := s.filterLogsWithRetry(ctx, blockRange.From, blockRange.To, pool)
		if err != nil {
			return nil, fmt.Errorf("%w: filter logs [%d, %d]: %v", model.ErrDataUnavailable, blockRange.From, blockRange.To, err)
		}

		for _, log := range logs {
			if log.Removed {
				continue
			}
			event, err := s.decoder.DecodeSwap(log)
			if err != nil {
				s.logger.Warn("skip undecodable swap log",
					zap.Uint64("block_number", log.BlockNumber),
					zap.String("tx_hash", log.TxHash.Hex()),
					zap.Error(err))
				continue
			}
			events = append(events, event)
		}
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].Block != events[j].Block {
			return events[i].Block < events[j].Block
		}
		return events[i].LogIndex < events[j].LogIndex
	})
	return events, nil
}

// SqrtPriceAtBlock reads slot0 at the given block via eth_call.
func (s *EVMSource) SqrtPriceAtBlock(ctx context.Context, pairAddress string, block uint64) (*big.Int, error) {
	if !common.IsHexAddress(pairAddress) {
		return nil, fmt.Errorf("invalid pair address: %s", pairAddress)
	}
	pool := common.HexToAddress(pairAddress)

	callData, err := s.decoder.PackSlot0Call()
	if err != nil {
		return nil, err
	}
	msg := ethereum.CallMsg{To: &pool, Data: callData}

	var output []byte
	err = withRetry(ctx, s.cfg.MaxAttempts, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		output, err = s.chain.CallContract(ctx, msg, new(big.Int).SetUint64(block))
		if err != nil {
			s.logger.Warn("slot0 call failed",
				zap.String("pool", pairAddress),
				zap.Uint64("block_number", block),
				zap.Error(err))
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: slot0 at block %d: %v", model.ErrDataUnavailable, block, err)
	}

	price, err := s.decoder.UnpackSlot0Price(output)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDataUnavailable, err)
	}
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: slot0 at block %d returned zero price", model.ErrDataUnavailable, block)
	}
	return price, nil
}

// LatestBlock returns the chain head block number.
func (s *EVMSource) LatestBlock(ctx context.Context) (uint64, error) {
	var latest uint64
	err := withRetry(ctx, s.cfg.MaxAttempts, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		latest, err = s.chain.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: latest block: %v", model.ErrDataUnavailable, err)
	}
	return latest, nil
}

func (s *EVMSource) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64, pool common.Address) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, s.cfg.MaxAttempts, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = s.chain.FilterLogs(ctx, fromBlock, toBlock, []common.Address{pool}, []common.Hash{s.decoder.SwapTopic()})
		if err != nil {
			s.logger.Warn("filter logs failed",
				zap.Error(err),
				zap.Uint64("from", fromBlock),
				zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}
