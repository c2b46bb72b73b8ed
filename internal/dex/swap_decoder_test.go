package dex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestDecodeSwap(t *testing.T) {
	poolABI, err := V3PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	decoder, err := NewSwapDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	recipient := common.HexToAddress("0x3333333333333333333333333333333333333333")

	data, err := poolABI.Events["Swap"].Inputs.NonIndexed().Pack(
		big.NewInt(-1000),
		big.NewInt(2000),
		big.NewInt(123456789),
		big.NewInt(987654321),
		big.NewInt(-15),
	)
	if err != nil {
		t.Fatalf("pack swap: %v", err)
	}

	log := types.Log{
		Address: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Topics: []common.Hash{
			decoder.SwapTopic(),
			common.BytesToHash(sender.Bytes()),
			common.BytesToHash(recipient.Bytes()),
		},
		Data:        data,
		BlockNumber: 12345,
		Index:       7,
	}

	swap, err := decoder.DecodeSwap(log)
	if err != nil {
		t.Fatalf("decode swap: %v", err)
	}

	if swap.Block != 12345 || swap.LogIndex != 7 {
		t.Fatalf("position mismatch: %+v", swap)
	}
	if swap.Amount0.Cmp(big.NewInt(-1000)) != 0 || swap.Amount1.Cmp(big.NewInt(2000)) != 0 {
		t.Fatalf("amounts mismatch: %+v", swap)
	}
	if swap.SqrtPriceX96.Cmp(big.NewInt(123456789)) != 0 {
		t.Fatalf("price mismatch: %s", swap.SqrtPriceX96)
	}
	if swap.PoolLiquidity.Cmp(big.NewInt(987654321)) != 0 {
		t.Fatalf("liquidity mismatch: %s", swap.PoolLiquidity)
	}
}

func TestDecodeSwapRejectsOtherTopics(t *testing.T) {
	decoder, err := NewSwapDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	log := types.Log{
		Topics: []common.Hash{common.HexToHash("0x01")},
	}
	if _, err := decoder.DecodeSwap(log); err == nil {
		t.Fatalf("expected error for non-swap topic")
	}
}

func TestSlot0PriceRoundTrip(t *testing.T) {
	poolABI, err := V3PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	decoder, err := NewSwapDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	if _, err := decoder.PackSlot0Call(); err != nil {
		t.Fatalf("pack slot0: %v", err)
	}

	want := new(big.Int)
	want.SetString("1461446703485210103287273052203988822378723970341", 10)

	output, err := poolABI.Methods["slot0"].Outputs.Pack(
		want,
		big.NewInt(100),
		uint16(1),
		uint16(1),
		uint16(1),
		uint8(0),
		true,
	)
	if err != nil {
		t.Fatalf("pack slot0 output: %v", err)
	}

	got, err := decoder.UnpackSlot0Price(output)
	if err != nil {
		t.Fatalf("unpack slot0: %v", err)
	}
	if got.Cmp(want) != 0 {
		t.Fatalf("price mismatch: got %s want %s", got, want)
	}
}
