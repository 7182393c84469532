package presale

import "math/big"

var (
	wad         = big.NewInt(1_000_000_000_000_000_000) // 1e18 fixed-point scale
	basisPoints = big.NewInt(10_000)
)

// CostWei returns the native-currency cost of tokenAmount units at priceWei
// per whole token: tokenAmount * priceWei / 1e18, truncating toward zero.
func CostWei(tokenAmount, priceWei *big.Int) *big.Int {
	if tokenAmount == nil || priceWei == nil {
		return big.NewInt(0)
	}
	cost := new(big.Int).Mul(tokenAmount, priceWei)
	return cost.Quo(cost, wad)
}

// SplitFee divides proceeds into the fee carve-out and the remainder
// forwarded to liquidity: fee = proceeds * feeBps / 10000.
func SplitFee(proceeds *big.Int, feeBps uint32) (fee, remainder *big.Int) {
	if proceeds == nil || proceeds.Sign() <= 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	fee = new(big.Int).Mul(proceeds, new(big.Int).SetUint64(uint64(feeBps)))
	fee.Quo(fee, basisPoints)
	remainder = new(big.Int).Sub(proceeds, fee)
	return fee, remainder
}
