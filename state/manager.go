package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"felixpad/core/types"
	"felixpad/storage"
)

var (
	// ErrInsufficientBalance signals a native-currency debit exceeding the
	// account balance.
	ErrInsufficientBalance = errors.New("state: insufficient native balance")
	// ErrNegativeAmount rejects negative transfer amounts outright.
	ErrNegativeAmount = errors.New("state: negative amount")
)

var accountPrefix = []byte("account/")

// journalEntry records the previous value of a key so a failed operation can
// be unwound without leaving partial writes behind.
type journalEntry struct {
	key     []byte
	prev    []byte
	existed bool
}

// Manager layers RLP-encoded rows and native-currency accounts over a raw
// key-value database. Every write is journaled; callers bracket each logical
// operation with Snapshot/RevertToSnapshot so multi-step mutations commit or
// roll back as a unit.
type Manager struct {
	db      storage.Database
	journal []journalEntry
}

// NewManager wraps the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Snapshot marks the current journal position. Passing the returned id to
// RevertToSnapshot undoes every write performed after this call.
func (m *Manager) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot restores all keys written since the snapshot was taken,
// newest first, and truncates the journal back to the snapshot position.
func (m *Manager) RevertToSnapshot(id int) error {
	if id < 0 || id > len(m.journal) {
		return fmt.Errorf("state: invalid snapshot id %d", id)
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		entry := m.journal[i]
		if entry.existed {
			if err := m.db.Put(entry.key, entry.prev); err != nil {
				return err
			}
		} else if err := m.db.Delete(entry.key); err != nil {
			return err
		}
	}
	m.journal = m.journal[:id]
	return nil
}

// Finalise discards the journal once an operation has fully committed.
func (m *Manager) Finalise() {
	m.journal = m.journal[:0]
}

func (m *Manager) rawPut(key, value []byte) error {
	entry := journalEntry{key: append([]byte(nil), key...)}
	prev, err := m.db.Get(key)
	switch {
	case err == nil:
		entry.prev = prev
		entry.existed = true
	case errors.Is(err, storage.ErrKeyNotFound):
	default:
		return err
	}
	if err := m.db.Put(key, value); err != nil {
		return err
	}
	m.journal = append(m.journal, entry)
	return nil
}

// KVPut RLP-encodes the value and stores it under the key, journaling the
// previous row.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.rawPut(key, encoded)
}

// KVGet decodes the row stored under key into out. The boolean reports
// whether the key existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

type storedAccount struct {
	Nonce      uint64
	BalanceWei *big.Int
}

func accountKey(addr [20]byte) []byte {
	return append(append([]byte(nil), accountPrefix...), addr[:]...)
}

// GetAccount loads the account for addr, returning a zero-balance account if
// none has been stored yet.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	stored := new(storedAccount)
	ok, err := m.KVGet(accountKey(addr), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Account{BalanceWei: big.NewInt(0)}, nil
	}
	balance := stored.BalanceWei
	if balance == nil {
		balance = big.NewInt(0)
	}
	return &types.Account{Nonce: stored.Nonce, BalanceWei: balance}, nil
}

// PutAccount persists the account for addr.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	balance := account.BalanceWei
	if balance == nil {
		balance = big.NewInt(0)
	}
	if balance.Sign() < 0 {
		return ErrNegativeAmount
	}
	return m.KVPut(accountKey(addr), &storedAccount{Nonce: account.Nonce, BalanceWei: balance})
}

// Transfer moves native currency between two accounts. Zero amounts are a
// no-op; negative amounts and overdrafts fail without touching state.
func (m *Manager) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	fromAcc, err := m.GetAccount(from)
	if err != nil {
		return err
	}
	if fromAcc.BalanceWei.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	toAcc, err := m.GetAccount(to)
	if err != nil {
		return err
	}
	fromAcc.BalanceWei = new(big.Int).Sub(fromAcc.BalanceWei, amount)
	toAcc.BalanceWei = new(big.Int).Add(toAcc.BalanceWei, amount)
	if err := m.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return m.PutAccount(to, toAcc)
}

// Credit mints native currency into an account. Used by genesis allocation
// and test fixtures.
func (m *Manager) Credit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	acc, err := m.GetAccount(addr)
	if err != nil {
		return err
	}
	acc.BalanceWei = new(big.Int).Add(acc.BalanceWei, amount)
	return m.PutAccount(addr, acc)
}
