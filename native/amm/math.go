package amm

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// ErrAmountOverflow rejects deposits whose intermediate products exceed
	// 256 bits.
	ErrAmountOverflow = errors.New("amm: amount overflow")
	// ErrInsufficientLiquidityMinted signals a deposit too small to mint any
	// liquidity units.
	ErrInsufficientLiquidityMinted = errors.New("amm: insufficient liquidity minted")
)

// minimumLiquidity is permanently locked on the first deposit so the pool can
// never be fully drained, following the Uniswap v2 convention.
var minimumLiquidity = uint256.NewInt(1000)

func toU256(v *big.Int) (*uint256.Int, error) {
	if v == nil || v.Sign() < 0 {
		return nil, ErrAmountOverflow
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return u, nil
}

// initialLiquidity computes sqrt(x*y) - minimumLiquidity for the first
// deposit into an empty pool.
func initialLiquidity(x, y *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrAmountOverflow
	}
	liquidity := new(uint256.Int).Sqrt(product)
	if liquidity.Cmp(minimumLiquidity) <= 0 {
		return nil, ErrInsufficientLiquidityMinted
	}
	return liquidity.Sub(liquidity, minimumLiquidity), nil
}

// proportionalLiquidity computes min(dx*supply/x, dy*supply/y) for a deposit
// into a pool with existing reserves.
func proportionalLiquidity(dx, dy, x, y, supply *uint256.Int) (*uint256.Int, error) {
	byToken, overflow := new(uint256.Int).MulOverflow(dx, supply)
	if overflow {
		return nil, ErrAmountOverflow
	}
	byToken.Div(byToken, x)
	byNative, overflow := new(uint256.Int).MulOverflow(dy, supply)
	if overflow {
		return nil, ErrAmountOverflow
	}
	byNative.Div(byNative, y)
	liquidity := byToken
	if byNative.Cmp(byToken) < 0 {
		liquidity = byNative
	}
	if liquidity.IsZero() {
		return nil, ErrInsufficientLiquidityMinted
	}
	return liquidity, nil
}
