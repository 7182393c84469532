package types

import "math/big"

// Account holds the native-currency state tracked for a single address.
// Balances are denominated in wei and expressed as big integers to keep the
// 18-decimal accounting exact.
type Account struct {
	Nonce      uint64
	BalanceWei *big.Int
}

// Clone returns a deep copy so callers can mutate the result without
// affecting the stored instance.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{BalanceWei: big.NewInt(0)}
	}
	clone := &Account{Nonce: a.Nonce, BalanceWei: big.NewInt(0)}
	if a.BalanceWei != nil {
		clone.BalanceWei = new(big.Int).Set(a.BalanceWei)
	}
	return clone
}
