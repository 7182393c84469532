package presale

import (
	"fmt"
	"math/big"
)

// Offer captures one presale entry: the token being sold, its fixed price,
// the inclusive sale window and the running sale state. Amounts follow the
// 18-decimal wei convention. Raised is the per-offer segregated sub-balance
// of native currency received, so concurrent offers never contaminate each
// other's proceeds. PoolTokens is the slice of escrow consumed by the
// settlement liquidity deposit; Sold + PoolTokens never exceeds Amount.
type Offer struct {
	ID         uint64
	Owner      [20]byte
	Token      [20]byte
	Start      int64
	End        int64
	PriceWei   *big.Int
	Amount     *big.Int
	Sold       *big.Int
	Raised     *big.Int
	PoolTokens *big.Int
	Alive      bool
	Withdrawn  bool
	CreatedAt  int64
}

// Clone returns a deep copy so callers can safely mutate the result without
// affecting the stored row.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	clone.PriceWei = cloneBigInt(o.PriceWei)
	clone.Amount = cloneBigInt(o.Amount)
	clone.Sold = cloneBigInt(o.Sold)
	clone.Raised = cloneBigInt(o.Raised)
	clone.PoolTokens = cloneBigInt(o.PoolTokens)
	return &clone
}

// Remaining reports the unsold inventory still purchasable while the offer
// is alive.
func (o *Offer) Remaining() *big.Int {
	if o == nil || o.Amount == nil {
		return big.NewInt(0)
	}
	sold := o.Sold
	if sold == nil {
		sold = big.NewInt(0)
	}
	return new(big.Int).Sub(o.Amount, sold)
}

// Residual reports the escrow still held for the owner after settlement:
// unsold inventory minus whatever the liquidity deposit consumed. This is the
// quantity a withdrawal pays out.
func (o *Offer) Residual() *big.Int {
	if o == nil {
		return big.NewInt(0)
	}
	residual := o.Remaining()
	if o.PoolTokens != nil {
		residual.Sub(residual, o.PoolTokens)
	}
	if residual.Sign() < 0 {
		return big.NewInt(0)
	}
	return residual
}

// SanitizeOffer validates a row before it is persisted, returning a clone
// with non-nil amount fields.
func SanitizeOffer(o *Offer) (*Offer, error) {
	if o == nil {
		return nil, fmt.Errorf("presale: nil offer")
	}
	clone := o.Clone()
	if clone.PriceWei.Sign() <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidOffer)
	}
	if clone.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidOffer)
	}
	if clone.Sold.Sign() < 0 || clone.Sold.Cmp(clone.Amount) > 0 {
		return nil, fmt.Errorf("%w: sold out of range", ErrInvalidOffer)
	}
	if clone.Raised.Sign() < 0 {
		return nil, fmt.Errorf("%w: raised must be non-negative", ErrInvalidOffer)
	}
	if clone.PoolTokens.Sign() < 0 {
		return nil, fmt.Errorf("%w: pool tokens must be non-negative", ErrInvalidOffer)
	}
	if new(big.Int).Add(clone.Sold, clone.PoolTokens).Cmp(clone.Amount) > 0 {
		return nil, fmt.Errorf("%w: sold plus pool tokens above amount", ErrInvalidOffer)
	}
	if clone.End < clone.Start {
		return nil, fmt.Errorf("%w: window ends before it starts", ErrInvalidOffer)
	}
	return clone, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
