// Package univ3 implements the integer-only Uniswap V3 price and
// liquidity math used by the simulator. All values are big.Int Q96
// fixed point; nothing in this package touches floats.
package univ3

import (
	"fmt"
	"math/big"
)

const (
	// MinTick and MaxTick bound the usable tick domain.
	MinTick = -887272
	MaxTick = 887272
)

var (
	// Q96 is the fixed-point scale 2^96, Q192 its square.
	Q96  = new(big.Int).Lsh(big.NewInt(1), 96)
	Q192 = new(big.Int).Lsh(big.NewInt(1), 192)

	// MinSqrtRatio and MaxSqrtRatio are SqrtRatioAtTick at the tick
	// domain endpoints.
	MinSqrtRatio = big.NewInt(4295128739)
	MaxSqrtRatio = mustBig("1461446703485210103287273052203988822378723970342")

	maxUint256Plus1 = new(big.Int).Lsh(big.NewInt(1), 256)
	mask32          = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 32), big.NewInt(1))

	one128 = hexBig("0x100000000000000000000000000000000")

	// Per-bit Q128 multipliers for sqrt(1.0001)^(-2^i). The values are
	// the canonical TickMath constants and must not change.
	tickMultipliers = []*big.Int{
		hexBig("0xfffcb933bd6fad37aa2d162d1a594001"),
		hexBig("0xfff97272373d413259a46990580e213a"),
		hexBig("0xfff2e50f5f656932ef12357cf3c7fdcc"),
		hexBig("0xffe5caca7e10e4e61c3624eaa0941cd0"),
		hexBig("0xffcb9843d60f6159c9db58835c926644"),
		hexBig("0xff973b41fa98c081472e6896dfb254c0"),
		hexBig("0xff2ea16466c96a3843ec78b326b52861"),
		hexBig("0xfe5dee046a99a2a811c461f1969c3053"),
		hexBig("0xfcbe86c7900a88aedcffc83b479aa3a4"),
		hexBig("0xf987a7253ac413176f2b074cf7815e54"),
		hexBig("0xf3392b0822b70005940c7a398e4b70f3"),
		hexBig("0xe7159475a2c29b7443b29c7fa6e889d9"),
		hexBig("0xd097f3bdfd2022b8845ad8f792aa5825"),
		hexBig("0xa9f746462d870fdf8a65dc1f90e061e5"),
		hexBig("0x70d869a156d2a1b890bb3df62baf32f7"),
		hexBig("0x31be135f97d08fd981231505542fcfa6"),
		hexBig("0x9aa508b5b7a84e1c677de54f3e99bc9"),
		hexBig("0x5d6af8dedb81196699c329225ee604"),
		hexBig("0x2216e584f5fa1ea926041bedfe98"),
		hexBig("0x48a170391f7dc42444e8fa2"),
	}
)

func mustBig(dec string) *big.Int {
	v, ok := new(big.Int).SetString(dec, 10)
	if !ok {
		panic("univ3: bad constant " + dec)
	}
	return v
}

func hexBig(hex string) *big.Int {
	v, ok := new(big.Int).SetString(hex[2:], 16)
	if !ok {
		panic("univ3: bad constant " + hex)
	}
	return v
}

// SqrtRatioAtTick returns sqrt(1.0001^tick) * 2^96 with the exact
// rounding of the on-chain TickMath implementation, so prices computed
// here are bit-identical to what the pool contract reports.
func SqrtRatioAtTick(tick int) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("tick %d out of range [%d, %d]", tick, MinTick, MaxTick)
	}

	absTick := tick
	if absTick < 0 {
		absTick = -absTick
	}

	ratio := new(big.Int)
	if absTick&1 != 0 {
		ratio.Set(tickMultipliers[0])
	} else {
		ratio.Set(one128)
	}
	for i := 1; i < len(tickMultipliers); i++ {
		if absTick&(1<<uint(i)) != 0 {
			ratio.Mul(ratio, tickMultipliers[i])
			ratio.Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio.Div(maxUint256Plus1, ratio)
	}

	// Q128 -> Q96, rounding up.
	rem := new(big.Int).And(ratio, mask32)
	ratio.Rsh(ratio, 32)
	if rem.Sign() != 0 {
		ratio.Add(ratio, big.NewInt(1))
	}
	return ratio, nil
}
