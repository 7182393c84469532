package presale

import (
	"encoding/binary"
	"math/big"
)

// Storage abstracts the subset of state manager functionality required by the
// offer ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	offerPrefix = []byte("presale/offer/")
	nextIDKey   = []byte("presale/offer/next")
)

// Ledger is the indexed offer table: append-only by id, mutable in place per
// row, no deletion. Identifiers are assigned consecutively in submission
// order starting at zero.
type Ledger struct {
	state Storage
}

// NewLedger builds an offer ledger over the provided state backend.
func NewLedger(state Storage) *Ledger {
	return &Ledger{state: state}
}

// storedOffer is the RLP shape of an offer row. Timestamps are widened to
// unsigned integers because RLP has no signed encoding.
type storedOffer struct {
	ID         uint64
	Owner      [20]byte
	Token      [20]byte
	Start      uint64
	End        uint64
	PriceWei   *big.Int
	Amount     *big.Int
	Sold       *big.Int
	Raised     *big.Int
	PoolTokens *big.Int
	Alive      bool
	Withdrawn  bool
	CreatedAt  uint64
}

func toStoredOffer(o *Offer) *storedOffer {
	return &storedOffer{
		ID:         o.ID,
		Owner:      o.Owner,
		Token:      o.Token,
		Start:      uint64(o.Start),
		End:        uint64(o.End),
		PriceWei:   o.PriceWei,
		Amount:     o.Amount,
		Sold:       o.Sold,
		Raised:     o.Raised,
		PoolTokens: o.PoolTokens,
		Alive:      o.Alive,
		Withdrawn:  o.Withdrawn,
		CreatedAt:  uint64(o.CreatedAt),
	}
}

func (s *storedOffer) toOffer() *Offer {
	return &Offer{
		ID:         s.ID,
		Owner:      s.Owner,
		Token:      s.Token,
		Start:      int64(s.Start),
		End:        int64(s.End),
		PriceWei:   cloneBigInt(s.PriceWei),
		Amount:     cloneBigInt(s.Amount),
		Sold:       cloneBigInt(s.Sold),
		Raised:     cloneBigInt(s.Raised),
		PoolTokens: cloneBigInt(s.PoolTokens),
		Alive:      s.Alive,
		Withdrawn:  s.Withdrawn,
		CreatedAt:  int64(s.CreatedAt),
	}
}

func offerKey(id uint64) []byte {
	key := append([]byte(nil), offerPrefix...)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return append(key, buf[:]...)
}

// Append assigns the next free identifier to the offer and persists it. The
// assigned id is written back into the offer and returned.
func (l *Ledger) Append(offer *Offer) (uint64, error) {
	sanitized, err := SanitizeOffer(offer)
	if err != nil {
		return 0, err
	}
	var next uint64
	if _, err := l.state.KVGet(nextIDKey, &next); err != nil {
		return 0, err
	}
	sanitized.ID = next
	if err := l.state.KVPut(offerKey(next), toStoredOffer(sanitized)); err != nil {
		return 0, err
	}
	if err := l.state.KVPut(nextIDKey, next+1); err != nil {
		return 0, err
	}
	offer.ID = next
	return next, nil
}

// Get loads the offer stored under id.
func (l *Ledger) Get(id uint64) (*Offer, error) {
	stored := new(storedOffer)
	ok, err := l.state.KVGet(offerKey(id), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOfferNotFound
	}
	return stored.toOffer(), nil
}

// Put overwrites an existing row. The offer must already have been appended.
func (l *Ledger) Put(offer *Offer) error {
	sanitized, err := SanitizeOffer(offer)
	if err != nil {
		return err
	}
	ok, err := l.state.KVGet(offerKey(sanitized.ID), new(storedOffer))
	if err != nil {
		return err
	}
	if !ok {
		return ErrOfferNotFound
	}
	return l.state.KVPut(offerKey(sanitized.ID), toStoredOffer(sanitized))
}

// Len reports how many offers have been registered.
func (l *Ledger) Len() (uint64, error) {
	var next uint64
	if _, err := l.state.KVGet(nextIDKey, &next); err != nil {
		return 0, err
	}
	return next, nil
}
