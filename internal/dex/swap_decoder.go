package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"liquidityArena/internal/model"
)

// SwapDecoder decodes Uniswap V3 / PancakeSwap V3 pool Swap logs into
// the simulator's swap event form.
type SwapDecoder struct {
	poolABI   abi.ABI
	swapTopic common.Hash
}

// NewSwapDecoder builds a swap decoder from the parsed pool ABI.
func NewSwapDecoder() (*SwapDecoder, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, err
	}
	return &SwapDecoder{
		poolABI:   poolABI,
		swapTopic: poolABI.Events["Swap"].ID,
	}, nil
}

// SwapTopic returns topic0 of the Swap event for log filtering.
func (d *SwapDecoder) SwapTopic() common.Hash {
	return d.swapTopic
}

// DecodeSwap converts a raw pool log into a swap event. Amounts keep
// the pool's sign convention: positive is input to the pool.
func (d *SwapDecoder) DecodeSwap(log types.Log) (model.SwapEvent, error) {
	if len(log.Topics) == 0 || log.Topics[0] != d.swapTopic {
		return model.SwapEvent{}, fmt.Errorf("not a swap log: %s", log.TxHash.Hex())
	}

	event := d.poolABI.Events["Swap"]
	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.SwapEvent{}, fmt.Errorf("unpack swap: %w", err)
	}
	if len(values) != 5 {
		return model.SwapEvent{}, fmt.Errorf("unexpected swap values: %d", len(values))
	}

	amount0, err := asBigInt(values[0])
	if err != nil {
		return model.SwapEvent{}, err
	}
	amount1, err := asBigInt(values[1])
	if err != nil {
		return model.SwapEvent{}, err
	}
	sqrtPrice, err := asBigInt(values[2])
	if err != nil {
		return model.SwapEvent{}, err
	}
	liquidity, err := asBigInt(values[3])
	if err != nil {
		return model.SwapEvent{}, err
	}

	return model.SwapEvent{
		Block:         log.BlockNumber,
		LogIndex:      uint(log.Index),
		Amount0:       amount0,
		Amount1:       amount1,
		SqrtPriceX96:  sqrtPrice,
		PoolLiquidity: liquidity,
	}, nil
}

// PackSlot0Call encodes the slot0 call data.
func (d *SwapDecoder) PackSlot0Call() ([]byte, error) {
	return d.poolABI.Pack("slot0")
}

// UnpackSlot0Price extracts sqrtPriceX96 from a slot0 call result.
func (d *SwapDecoder) UnpackSlot0Price(output []byte) (*big.Int, error) {
	values, err := d.poolABI.Unpack("slot0", output)
	if err != nil {
		return nil, fmt.Errorf("unpack slot0: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("empty slot0 result")
	}
	return asBigInt(values[0])
}

func asBigInt(v interface{}) (*big.Int, error) {
	value, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected value type %T", v)
	}
	return value, nil
}
