package amm

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	ErrPoolNotFound        = errors.New("amm: pool not found")
	ErrInsufficientLPUnits = errors.New("amm: insufficient liquidity units")
	errNilState            = errors.New("amm: state not configured")
	errNilTokens           = errors.New("amm: token ledger not configured")
)

// Storage abstracts the subset of state manager functionality required by the
// pool set.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	Transfer(from, to [20]byte, amount *big.Int) error
}

// TokenTransferor moves pool tokens in and out of custody.
type TokenTransferor interface {
	Transfer(token, from, to [20]byte, amount *big.Int) error
}

var (
	poolPrefix = []byte("amm/pool/")
	lpPrefix   = []byte("amm/lp/")
)

type storedPool struct {
	ReserveToken  *big.Int
	ReserveNative *big.Int
	LPSupply      *big.Int
}

// PoolSet manages one constant-product token/native pool per token address.
// Reserves and liquidity-unit balances live in the journaled state manager,
// so deposits revert together with the settlement that triggered them.
type PoolSet struct {
	state  Storage
	tokens TokenTransferor
	vault  [20]byte
}

// NewPoolSet builds the pool collection. The vault address holds both legs of
// every pool's reserves.
func NewPoolSet(state Storage, tokens TokenTransferor, vault [20]byte) *PoolSet {
	return &PoolSet{state: state, tokens: tokens, vault: vault}
}

func poolKey(token [20]byte) []byte {
	return append(append([]byte(nil), poolPrefix...), token[:]...)
}

func lpKey(token, holder [20]byte) []byte {
	key := append(append([]byte(nil), lpPrefix...), token[:]...)
	key = append(key, '/')
	return append(key, holder[:]...)
}

func (p *PoolSet) loadPool(token [20]byte) (*storedPool, bool, error) {
	pool := new(storedPool)
	ok, err := p.state.KVGet(poolKey(token), pool)
	if err != nil || !ok {
		return nil, false, err
	}
	return pool, true, nil
}

func (p *PoolSet) loadLP(token, holder [20]byte) (*big.Int, error) {
	units := new(big.Int)
	ok, err := p.state.KVGet(lpKey(token, holder), units)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return units, nil
}

// Reserves reports the current pool state for a token.
func (p *PoolSet) Reserves(token [20]byte) (reserveToken, reserveNative, lpSupply *big.Int, err error) {
	pool, ok, err := p.loadPool(token)
	if err != nil {
		return nil, nil, nil, err
	}
	if !ok {
		return nil, nil, nil, ErrPoolNotFound
	}
	return pool.ReserveToken, pool.ReserveNative, pool.LPSupply, nil
}

// LPBalance reports the liquidity units held by an address for a token pool.
func (p *PoolSet) LPBalance(token, holder [20]byte) (*big.Int, error) {
	return p.loadLP(token, holder)
}

// AddLiquidity pulls tokenAmount of the token plus nativeAmount of native
// currency from the depositor into the pool vault and mints liquidity units:
// sqrt(x*y) minus the locked minimum on the first deposit, the proportional
// minimum afterwards.
func (p *PoolSet) AddLiquidity(from, token [20]byte, tokenAmount, nativeAmount *big.Int) (*big.Int, error) {
	if p == nil || p.state == nil {
		return nil, errNilState
	}
	if p.tokens == nil {
		return nil, errNilTokens
	}
	dx, err := toU256(tokenAmount)
	if err != nil {
		return nil, err
	}
	dy, err := toU256(nativeAmount)
	if err != nil {
		return nil, err
	}
	pool, ok, err := p.loadPool(token)
	if err != nil {
		return nil, err
	}
	if !ok {
		pool = &storedPool{ReserveToken: big.NewInt(0), ReserveNative: big.NewInt(0), LPSupply: big.NewInt(0)}
	}

	var minted *uint256.Int
	if pool.LPSupply.Sign() == 0 {
		minted, err = initialLiquidity(dx, dy)
	} else {
		var x, y, supply *uint256.Int
		if x, err = toU256(pool.ReserveToken); err != nil {
			return nil, err
		}
		if y, err = toU256(pool.ReserveNative); err != nil {
			return nil, err
		}
		if supply, err = toU256(pool.LPSupply); err != nil {
			return nil, err
		}
		minted, err = proportionalLiquidity(dx, dy, x, y, supply)
	}
	if err != nil {
		return nil, err
	}

	if err := p.tokens.Transfer(token, from, p.vault, tokenAmount); err != nil {
		return nil, err
	}
	if err := p.state.Transfer(from, p.vault, nativeAmount); err != nil {
		return nil, err
	}

	mintedBig := minted.ToBig()
	pool.ReserveToken = new(big.Int).Add(pool.ReserveToken, tokenAmount)
	pool.ReserveNative = new(big.Int).Add(pool.ReserveNative, nativeAmount)
	supplyDelta := new(big.Int).Set(mintedBig)
	if pool.LPSupply.Sign() == 0 {
		// The locked minimum counts toward supply but is never redeemable.
		supplyDelta.Add(supplyDelta, minimumLiquidity.ToBig())
	}
	pool.LPSupply = new(big.Int).Add(pool.LPSupply, supplyDelta)
	if err := p.state.KVPut(poolKey(token), pool); err != nil {
		return nil, err
	}
	units, err := p.loadLP(token, from)
	if err != nil {
		return nil, err
	}
	units = new(big.Int).Add(units, mintedBig)
	if err := p.state.KVPut(lpKey(token, from), units); err != nil {
		return nil, err
	}
	return mintedBig, nil
}

// RemoveLiquidity burns the holder's liquidity units and pays out the
// proportional share of both reserves.
func (p *PoolSet) RemoveLiquidity(to, token [20]byte, units *big.Int) (tokenOut, nativeOut *big.Int, err error) {
	if p == nil || p.state == nil {
		return nil, nil, errNilState
	}
	if p.tokens == nil {
		return nil, nil, errNilTokens
	}
	burn, err := toU256(units)
	if err != nil {
		return nil, nil, err
	}
	if burn.IsZero() {
		return big.NewInt(0), big.NewInt(0), nil
	}
	pool, ok, err := p.loadPool(token)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrPoolNotFound
	}
	held, err := p.loadLP(token, to)
	if err != nil {
		return nil, nil, err
	}
	if held.Cmp(units) < 0 {
		return nil, nil, ErrInsufficientLPUnits
	}
	supply, err := toU256(pool.LPSupply)
	if err != nil {
		return nil, nil, err
	}
	x, err := toU256(pool.ReserveToken)
	if err != nil {
		return nil, nil, err
	}
	y, err := toU256(pool.ReserveNative)
	if err != nil {
		return nil, nil, err
	}
	outToken, overflow := new(uint256.Int).MulOverflow(x, burn)
	if overflow {
		return nil, nil, ErrAmountOverflow
	}
	outToken.Div(outToken, supply)
	outNative, overflow := new(uint256.Int).MulOverflow(y, burn)
	if overflow {
		return nil, nil, ErrAmountOverflow
	}
	outNative.Div(outNative, supply)

	tokenOut = outToken.ToBig()
	nativeOut = outNative.ToBig()
	if err := p.tokens.Transfer(token, p.vault, to, tokenOut); err != nil {
		return nil, nil, err
	}
	if err := p.state.Transfer(p.vault, to, nativeOut); err != nil {
		return nil, nil, err
	}
	pool.ReserveToken = new(big.Int).Sub(pool.ReserveToken, tokenOut)
	pool.ReserveNative = new(big.Int).Sub(pool.ReserveNative, nativeOut)
	pool.LPSupply = new(big.Int).Sub(pool.LPSupply, units)
	if err := p.state.KVPut(poolKey(token), pool); err != nil {
		return nil, nil, err
	}
	held = new(big.Int).Sub(held, units)
	if err := p.state.KVPut(lpKey(token, to), held); err != nil {
		return nil, nil, err
	}
	return tokenOut, nativeOut, nil
}
