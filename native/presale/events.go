package presale

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"felixpad/core/types"
)

const (
	EventTypePresaleRegistered = "presale.registered"
	EventTypePresalePurchased  = "presale.purchased"
	EventTypePresaleSettled    = "presale.settled"
	EventTypePresaleWithdrawn  = "presale.withdrawn"
	EventTypeFeeUpdated        = "presale.fee_updated"
)

func offerAttributes(o *Offer) map[string]string {
	attrs := make(map[string]string)
	if o == nil {
		return attrs
	}
	attrs["id"] = strconv.FormatUint(o.ID, 10)
	attrs["owner"] = hex.EncodeToString(o.Owner[:])
	attrs["token"] = hex.EncodeToString(o.Token[:])
	attrs["start"] = strconv.FormatInt(o.Start, 10)
	attrs["end"] = strconv.FormatInt(o.End, 10)
	attrs["priceWei"] = o.PriceWei.String()
	attrs["amount"] = o.Amount.String()
	attrs["sold"] = o.Sold.String()
	attrs["poolTokens"] = o.PoolTokens.String()
	return attrs
}

// NewRegisteredEvent returns the canonical payload for a freshly appended
// offer row.
func NewRegisteredEvent(o *Offer) *types.Event {
	return &types.Event{Type: EventTypePresaleRegistered, Attributes: offerAttributes(o)}
}

// NewPurchasedEvent records a single buy, including the buyer and the native
// value attached to the call.
func NewPurchasedEvent(o *Offer, buyer [20]byte, tokenAmount, value *big.Int) *types.Event {
	attrs := offerAttributes(o)
	attrs["buyer"] = hex.EncodeToString(buyer[:])
	attrs["tokenAmount"] = tokenAmount.String()
	attrs["valueWei"] = value.String()
	return &types.Event{Type: EventTypePresalePurchased, Attributes: attrs}
}

// NewSettledEvent records the terminal settlement split for an offer.
func NewSettledEvent(o *Offer, proceeds, fee, liquidityWei, lpMinted *big.Int) *types.Event {
	attrs := offerAttributes(o)
	attrs["proceedsWei"] = proceeds.String()
	attrs["feeWei"] = fee.String()
	attrs["liquidityWei"] = liquidityWei.String()
	attrs["lpMinted"] = lpMinted.String()
	return &types.Event{Type: EventTypePresaleSettled, Attributes: attrs}
}

// NewWithdrawnEvent records the owner reclaiming unsold inventory.
func NewWithdrawnEvent(o *Offer, residue *big.Int) *types.Event {
	attrs := offerAttributes(o)
	attrs["residue"] = residue.String()
	return &types.Event{Type: EventTypePresaleWithdrawn, Attributes: attrs}
}

// NewFeeUpdatedEvent records a fee policy change.
func NewFeeUpdatedEvent(oldBps, newBps uint32) *types.Event {
	return &types.Event{Type: EventTypeFeeUpdated, Attributes: map[string]string{
		"oldBps": strconv.FormatUint(uint64(oldBps), 10),
		"newBps": strconv.FormatUint(uint64(newBps), 10),
	}}
}
