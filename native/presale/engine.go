package presale

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"felixpad/core/events"
	"felixpad/core/types"
)

var (
	errNilState  = errors.New("presale engine: state not configured")
	errNilTokens = errors.New("presale engine: token ledger not configured")
	errNilRouter = errors.New("presale engine: liquidity router not configured")
)

var feeBpsKey = []byte("presale/params/feebps")

// EngineState is the slice of state manager functionality the engine needs:
// journaled key-value rows plus native-currency custody moves. Snapshot and
// RevertToSnapshot give every operation its all-or-nothing boundary.
type EngineState interface {
	Storage
	Snapshot() int
	RevertToSnapshot(id int) error
	Finalise()
	Transfer(from, to [20]byte, amount *big.Int) error
}

// TokenAccessor is the fungible-token capability consumed by the engine.
type TokenAccessor interface {
	Transfer(token, from, to [20]byte, amount *big.Int) error
	TransferFrom(token, spender, from, to [20]byte, amount *big.Int) error
}

// LiquidityRouter deposits a token amount plus native currency into an AMM
// pool and reports the liquidity units minted to the depositor.
type LiquidityRouter interface {
	AddLiquidity(from, token [20]byte, tokenAmount, nativeAmount *big.Int) (*big.Int, error)
}

type presaleEvent struct {
	evt *types.Event
}

func (e presaleEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e presaleEvent) Event() *types.Event { return e.evt }

// Engine wires the presale business logic with state, token custody, the
// liquidity router and event emission. The vault address holds escrowed
// tokens and native proceeds; callers grant the vault a token allowance
// before registering offers.
type Engine struct {
	state        EngineState
	ledger       *Ledger
	tokens       TokenAccessor
	router       LiquidityRouter
	emitter      events.Emitter
	nowFn        func() int64
	vault        [20]byte
	feeCollector [20]byte
	feeOwner     [20]byte
}

// NewEngine creates a presale engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine(state EngineState, tokens TokenAccessor, router LiquidityRouter) *Engine {
	return &Engine{
		state:   state,
		ledger:  NewLedger(state),
		tokens:  tokens,
		router:  router,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetVault configures the custody address for escrowed tokens and native
// proceeds.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

// Vault reports the configured custody address.
func (e *Engine) Vault() [20]byte { return e.vault }

// SetFeeCollector configures the address receiving the settlement fee
// carve-out.
func (e *Engine) SetFeeCollector(addr [20]byte) { e.feeCollector = addr }

// SetFeeOwner configures the single identity allowed to change the fee.
func (e *Engine) SetFeeOwner(addr [20]byte) { e.feeOwner = addr }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(presaleEvent{evt: evt})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) checkWired() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.tokens == nil {
		return errNilTokens
	}
	return nil
}

// FeeBps returns the basis points applied to proceeds at settlement time.
func (e *Engine) FeeBps() (uint32, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	var bps uint64
	if _, err := e.state.KVGet(feeBpsKey, &bps); err != nil {
		return 0, err
	}
	return uint32(bps), nil
}

// InitFee seeds the fee policy at construction time without an owner check.
// It refuses to overwrite an already persisted value.
func (e *Engine) InitFee(bps uint32) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if bps > 10_000 {
		return ErrFeeBpsOutOfRange
	}
	var existing uint64
	ok, err := e.state.KVGet(feeBpsKey, &existing)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return e.state.KVPut(feeBpsKey, uint64(bps))
}

// ChangeFee updates the settlement fee. Only the fee owner may call it; the
// new value applies to settlements processed after the call.
func (e *Engine) ChangeFee(caller [20]byte, newBps uint32) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller != e.feeOwner {
		return ErrNotOwner
	}
	if newBps > 10_000 {
		return ErrFeeBpsOutOfRange
	}
	oldBps, err := e.FeeBps()
	if err != nil {
		return err
	}
	if err := e.state.KVPut(feeBpsKey, uint64(newBps)); err != nil {
		return err
	}
	e.state.Finalise()
	e.emit(NewFeeUpdatedEvent(oldBps, newBps))
	return nil
}

// StartPresale validates and atomically commits a batch of offers, pulling
// each token amount from the caller into the vault via the allowance the
// caller granted the vault beforehand. If any single funding transfer fails,
// every row and every transfer already performed in the same call is rolled
// back; no partial batch is ever persisted.
func (e *Engine) StartPresale(caller [20]byte, starts, ends []int64, prices, amounts []*big.Int, tokens [][20]byte) ([]uint64, error) {
	if err := e.checkWired(); err != nil {
		return nil, err
	}
	n := len(starts)
	if len(ends) != n || len(prices) != n || len(amounts) != n || len(tokens) != n {
		return nil, ErrArityMismatch
	}
	now := e.now()
	snapshot := e.state.Snapshot()
	ids := make([]uint64, 0, n)
	created := make([]*Offer, 0, n)
	for i := 0; i < n; i++ {
		offer := &Offer{
			Owner:      caller,
			Token:      tokens[i],
			Start:      starts[i],
			End:        ends[i],
			PriceWei:   cloneBigInt(prices[i]),
			Amount:     cloneBigInt(amounts[i]),
			Sold:       big.NewInt(0),
			Raised:     big.NewInt(0),
			PoolTokens: big.NewInt(0),
			Alive:      true,
			CreatedAt:  now,
		}
		if err := e.tokens.TransferFrom(tokens[i], e.vault, caller, e.vault, offer.Amount); err != nil {
			return nil, e.abort(snapshot, fmt.Errorf("fund offer %d: %w", i, err))
		}
		id, err := e.ledger.Append(offer)
		if err != nil {
			return nil, e.abort(snapshot, err)
		}
		ids = append(ids, id)
		created = append(created, offer)
	}
	e.state.Finalise()
	for _, offer := range created {
		e.emit(NewRegisteredEvent(offer))
	}
	return ids, nil
}

// Buy executes a single purchase against an active offer. The attached value
// is retained in full: overpayment is not refunded, the engine is
// take-what-is-sent.
func (e *Engine) Buy(buyer [20]byte, offerID uint64, tokenAmount, value *big.Int) error {
	if err := e.checkWired(); err != nil {
		return err
	}
	offer, err := e.ledger.Get(offerID)
	if err != nil {
		return err
	}
	now := e.now()
	if now < offer.Start {
		return ErrPresaleNotStarted
	}
	if now > offer.End {
		return ErrPresaleEnded
	}
	if !offer.Alive {
		return ErrPresaleEnded
	}
	if tokenAmount == nil || tokenAmount.Sign() <= 0 {
		return fmt.Errorf("%w: token amount must be positive", ErrInvalidOffer)
	}
	if tokenAmount.Cmp(offer.Remaining()) > 0 {
		return ErrInsufficientInventory
	}
	paid := cloneBigInt(value)
	if paid.Cmp(CostWei(tokenAmount, offer.PriceWei)) < 0 {
		return ErrInsufficientPayment
	}
	snapshot := e.state.Snapshot()
	if err := e.state.Transfer(buyer, e.vault, paid); err != nil {
		return e.abort(snapshot, err)
	}
	if err := e.tokens.Transfer(offer.Token, e.vault, buyer, tokenAmount); err != nil {
		return e.abort(snapshot, err)
	}
	offer.Sold = new(big.Int).Add(offer.Sold, tokenAmount)
	offer.Raised = new(big.Int).Add(offer.Raised, paid)
	if err := e.ledger.Put(offer); err != nil {
		return e.abort(snapshot, err)
	}
	e.state.Finalise()
	e.emit(NewPurchasedEvent(offer, buyer, tokenAmount, paid))
	return nil
}

// EndPresale settles an offer once its window has elapsed. Any address may
// trigger it: settlement is the public close-the-window action, distinct
// from the owner-gated withdrawal. Proceeds sold*price/1e18 are split by the
// current fee policy; the fee moves to the collector and the remainder is
// deposited into the AMM together with a matching token quantity drawn from
// this offer's unsold escrow, capped so the deposit never dips into other
// offers' custody. Liquidity units accrue to the vault, not the offer owner.
func (e *Engine) EndPresale(offerID uint64) error {
	if err := e.checkWired(); err != nil {
		return err
	}
	if e.router == nil {
		return errNilRouter
	}
	offer, err := e.ledger.Get(offerID)
	if err != nil {
		return err
	}
	if !offer.Alive {
		return ErrPresaleNotAlive
	}
	if e.now() <= offer.End {
		return ErrPresaleNotEnded
	}
	feeBps, err := e.FeeBps()
	if err != nil {
		return err
	}
	proceeds := CostWei(offer.Sold, offer.PriceWei)
	fee, remainder := SplitFee(proceeds, feeBps)
	snapshot := e.state.Snapshot()
	if fee.Sign() > 0 {
		if err := e.state.Transfer(e.vault, e.feeCollector, fee); err != nil {
			return e.abort(snapshot, err)
		}
	}
	tokenLeg := cloneBigInt(offer.Sold)
	if remaining := offer.Remaining(); tokenLeg.Cmp(remaining) > 0 {
		tokenLeg = remaining
	}
	if remainder.Sign() == 0 {
		// Nothing to pair the tokens with: leave the escrow withdrawable.
		tokenLeg = big.NewInt(0)
	}
	lpMinted := big.NewInt(0)
	if tokenLeg.Sign() > 0 {
		lpMinted, err = e.router.AddLiquidity(e.vault, offer.Token, tokenLeg, remainder)
		if err != nil {
			return e.abort(snapshot, err)
		}
	}
	offer.PoolTokens = tokenLeg
	offer.Alive = false
	if err := e.ledger.Put(offer); err != nil {
		return e.abort(snapshot, err)
	}
	e.state.Finalise()
	e.emit(NewSettledEvent(offer, proceeds, fee, remainder, lpMinted))
	return nil
}

// Withdraw transfers the residual escrow of a settled offer back to its
// owner: unsold inventory minus the settlement's liquidity deposit. The
// withdrawn marker makes a second call fail instead of paying out twice.
func (e *Engine) Withdraw(caller [20]byte, offerID uint64) error {
	if err := e.checkWired(); err != nil {
		return err
	}
	offer, err := e.ledger.Get(offerID)
	if err != nil {
		return err
	}
	if caller != offer.Owner {
		return ErrNotPresaleOwner
	}
	if offer.Alive {
		return ErrPresaleAlive
	}
	if offer.Withdrawn {
		return ErrAlreadyWithdrawn
	}
	residue := offer.Residual()
	snapshot := e.state.Snapshot()
	if residue.Sign() > 0 {
		if err := e.tokens.Transfer(offer.Token, e.vault, offer.Owner, residue); err != nil {
			return e.abort(snapshot, err)
		}
	}
	offer.Withdrawn = true
	if err := e.ledger.Put(offer); err != nil {
		return e.abort(snapshot, err)
	}
	e.state.Finalise()
	e.emit(NewWithdrawnEvent(offer, residue))
	return nil
}

// GetPresale returns a copy of the offer row.
func (e *Engine) GetPresale(offerID uint64) (*Offer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.ledger.Get(offerID)
}

func (e *Engine) abort(snapshot int, cause error) error {
	if err := e.state.RevertToSnapshot(snapshot); err != nil {
		return fmt.Errorf("presale: rollback failed: %v (cause: %w)", err, cause)
	}
	return cause
}
