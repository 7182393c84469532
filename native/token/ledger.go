package token

import (
	"math/big"
)

// Storage abstracts the subset of state manager functionality required by the
// token ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	metaPrefix      = []byte("token/meta/")
	balancePrefix   = []byte("token/balance/")
	allowancePrefix = []byte("token/allowance/")
)

// Ledger tracks balances and allowances for every registered fungible token.
// All rows live in the journaled state manager, so token movements revert
// together with the operation that performed them.
type Ledger struct {
	state Storage
}

// NewLedger builds a token ledger over the provided state backend.
func NewLedger(state Storage) *Ledger {
	return &Ledger{state: state}
}

func metaKey(token [20]byte) []byte {
	return append(append([]byte(nil), metaPrefix...), token[:]...)
}

func balanceKey(token, holder [20]byte) []byte {
	key := append(append([]byte(nil), balancePrefix...), token[:]...)
	key = append(key, '/')
	return append(key, holder[:]...)
}

func allowanceKey(token, owner, spender [20]byte) []byte {
	key := append(append([]byte(nil), allowancePrefix...), token[:]...)
	key = append(key, '/')
	key = append(key, owner[:]...)
	key = append(key, '/')
	return append(key, spender[:]...)
}

// Register persists the metadata for a new token. Registering the same
// address twice fails.
func (l *Ledger) Register(meta *Metadata) error {
	sanitized, err := SanitizeMetadata(meta)
	if err != nil {
		return err
	}
	existing := new(Metadata)
	ok, err := l.state.KVGet(metaKey(sanitized.Address), existing)
	if err != nil {
		return err
	}
	if ok {
		return ErrTokenExists
	}
	return l.state.KVPut(metaKey(sanitized.Address), sanitized)
}

// Get returns the metadata for the token address, if registered.
func (l *Ledger) Get(token [20]byte) (*Metadata, bool, error) {
	meta := new(Metadata)
	ok, err := l.state.KVGet(metaKey(token), meta)
	if err != nil || !ok {
		return nil, false, err
	}
	return meta, true, nil
}

func (l *Ledger) loadAmount(key []byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := l.state.KVGet(key, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (l *Ledger) requireToken(token [20]byte) error {
	ok, err := l.state.KVGet(metaKey(token), new(Metadata))
	if err != nil {
		return err
	}
	if !ok {
		return ErrTokenNotFound
	}
	return nil
}

// BalanceOf returns the holder's balance of the given token.
func (l *Ledger) BalanceOf(token, holder [20]byte) (*big.Int, error) {
	if err := l.requireToken(token); err != nil {
		return nil, err
	}
	return l.loadAmount(balanceKey(token, holder))
}

// Allowance returns the amount spender may move out of owner's balance.
func (l *Ledger) Allowance(token, owner, spender [20]byte) (*big.Int, error) {
	if err := l.requireToken(token); err != nil {
		return nil, err
	}
	return l.loadAmount(allowanceKey(token, owner, spender))
}

// Mint credits freshly created units to the recipient. Only tokens registered
// as mintable support this; the sale token mints to whoever asks, mirroring a
// faucet-style test token.
func (l *Ledger) Mint(token, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	meta, ok, err := l.Get(token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTokenNotFound
	}
	if !meta.Mintable {
		return ErrNotMintable
	}
	balance, err := l.loadAmount(balanceKey(token, to))
	if err != nil {
		return err
	}
	balance = new(big.Int).Add(balance, amount)
	return l.state.KVPut(balanceKey(token, to), balance)
}

// Transfer moves amount from one holder to another. A zero amount is a no-op.
func (l *Ledger) Transfer(token, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	if err := l.requireToken(token); err != nil {
		return err
	}
	fromBalance, err := l.loadAmount(balanceKey(token, from))
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	toBalance, err := l.loadAmount(balanceKey(token, to))
	if err != nil {
		return err
	}
	fromBalance = new(big.Int).Sub(fromBalance, amount)
	toBalance = new(big.Int).Add(toBalance, amount)
	if err := l.state.KVPut(balanceKey(token, from), fromBalance); err != nil {
		return err
	}
	return l.state.KVPut(balanceKey(token, to), toBalance)
}

// Approve sets (not increments) the allowance spender holds on owner's
// balance.
func (l *Ledger) Approve(token, owner, spender [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if err := l.requireToken(token); err != nil {
		return err
	}
	return l.state.KVPut(allowanceKey(token, owner, spender), amount)
}

// TransferFrom moves amount from the owner's balance using the spender's
// allowance. The allowance check runs before the balance check so callers see
// a stable failure order.
func (l *Ledger) TransferFrom(token, spender, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	if err := l.requireToken(token); err != nil {
		return err
	}
	allowance, err := l.loadAmount(allowanceKey(token, from, spender))
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.Transfer(token, from, to, amount); err != nil {
		return err
	}
	allowance = new(big.Int).Sub(allowance, amount)
	return l.state.KVPut(allowanceKey(token, from, spender), allowance)
}
