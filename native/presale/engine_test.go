package presale

import (
	"errors"
	"math/big"
	"testing"

	"felixpad/native/token"
	"felixpad/state"
	"felixpad/storage"
)

var (
	vaultAddr    = testAddress(0xAA)
	feeCollector = testAddress(0xAB)
	feeOwner     = testAddress(0xAC)
	seller       = testAddress(0x01)
	buyer        = testAddress(0x02)
	saleToken    = testAddress(0xF0)
)

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func ether(n int64) *big.Int {
	wei := big.NewInt(n)
	return wei.Mul(wei, big.NewInt(1_000_000_000_000_000_000))
}

type routerCall struct {
	from         [20]byte
	token        [20]byte
	tokenAmount  *big.Int
	nativeAmount *big.Int
}

type routerStub struct {
	calls []routerCall
	err   error
	lp    *big.Int
}

func (r *routerStub) AddLiquidity(from, tok [20]byte, tokenAmount, nativeAmount *big.Int) (*big.Int, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.calls = append(r.calls, routerCall{
		from:         from,
		token:        tok,
		tokenAmount:  new(big.Int).Set(tokenAmount),
		nativeAmount: new(big.Int).Set(nativeAmount),
	})
	if r.lp != nil {
		return new(big.Int).Set(r.lp), nil
	}
	return big.NewInt(1), nil
}

type testEnv struct {
	manager *state.Manager
	tokens  *token.Ledger
	engine  *Engine
	router  *routerStub
	now     int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	tokens := token.NewLedger(manager)
	router := &routerStub{}
	engine := NewEngine(manager, tokens, router)
	engine.SetVault(vaultAddr)
	engine.SetFeeCollector(feeCollector)
	engine.SetFeeOwner(feeOwner)
	if err := engine.InitFee(200); err != nil {
		t.Fatalf("init fee: %v", err)
	}
	env := &testEnv{manager: manager, tokens: tokens, engine: engine, router: router, now: 1_000}
	engine.SetNowFunc(func() int64 { return env.now })

	if err := tokens.Register(&token.Metadata{Address: saleToken, Name: "Felix Token", Symbol: "FOK", Decimals: 18, Mintable: true}); err != nil {
		t.Fatalf("register token: %v", err)
	}
	manager.Finalise()
	return env
}

func (env *testEnv) fund(t *testing.T, holder [20]byte, amount *big.Int) {
	t.Helper()
	if err := env.tokens.Mint(saleToken, holder, amount); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := env.tokens.Approve(saleToken, holder, vaultAddr, amount); err != nil {
		t.Fatalf("approve: %v", err)
	}
	env.manager.Finalise()
}

func (env *testEnv) fundNative(t *testing.T, holder [20]byte, amount *big.Int) {
	t.Helper()
	if err := env.manager.Credit(holder, amount); err != nil {
		t.Fatalf("credit: %v", err)
	}
	env.manager.Finalise()
}

func (env *testEnv) registerOffer(t *testing.T, amount, price *big.Int, start, end int64) uint64 {
	t.Helper()
	env.fund(t, seller, amount)
	ids, err := env.engine.StartPresale(seller,
		[]int64{start}, []int64{end}, []*big.Int{price}, []*big.Int{amount}, [][20]byte{saleToken})
	if err != nil {
		t.Fatalf("start presale: %v", err)
	}
	return ids[0]
}

func (env *testEnv) tokenBalance(t *testing.T, holder [20]byte) *big.Int {
	t.Helper()
	balance, err := env.tokens.BalanceOf(saleToken, holder)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

func (env *testEnv) nativeBalance(t *testing.T, addr [20]byte) *big.Int {
	t.Helper()
	account, err := env.manager.GetAccount(addr)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	return account.BalanceWei
}

func TestStartPresaleAssignsConsecutiveIDs(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, seller, ether(30))
	ids, err := env.engine.StartPresale(seller,
		[]int64{500, 600}, []int64{2_000, 2_100},
		[]*big.Int{ether(1), ether(2)}, []*big.Int{ether(10), ether(20)},
		[][20]byte{saleToken, saleToken})
	if err != nil {
		t.Fatalf("start presale: %v", err)
	}
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 1 {
		t.Fatalf("unexpected ids %v", ids)
	}
	if got := env.tokenBalance(t, vaultAddr); got.Cmp(ether(30)) != 0 {
		t.Fatalf("vault custody = %s, want 30e18", got)
	}
	if got := env.tokenBalance(t, seller); got.Sign() != 0 {
		t.Fatalf("seller balance = %s, want 0", got)
	}
	second, err := env.engine.GetPresale(1)
	if err != nil {
		t.Fatalf("get presale: %v", err)
	}
	if !second.Alive || second.Sold.Sign() != 0 || second.Amount.Cmp(ether(20)) != 0 {
		t.Fatalf("unexpected offer row %+v", second)
	}
}

func TestStartPresaleArityMismatch(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.StartPresale(seller,
		[]int64{1}, []int64{2, 3}, []*big.Int{ether(1)}, []*big.Int{ether(1)}, [][20]byte{saleToken})
	if !errors.Is(err, ErrArityMismatch) {
		t.Fatalf("err = %v, want ErrArityMismatch", err)
	}
}

func TestStartPresaleAtomicRollback(t *testing.T) {
	env := newTestEnv(t)
	// Caller holds and approves 24e18 but the batch needs 25e18: the second
	// transfer-from fails and the whole batch must unwind.
	env.fund(t, seller, ether(24))
	_, err := env.engine.StartPresale(seller,
		[]int64{0, 0}, []int64{2_000, 2_000},
		[]*big.Int{ether(2), ether(2)}, []*big.Int{ether(12), ether(13)},
		[][20]byte{saleToken, saleToken})
	if !errors.Is(err, token.ErrInsufficientAllowance) {
		t.Fatalf("err = %v, want ErrInsufficientAllowance", err)
	}
	if got := env.tokenBalance(t, seller); got.Cmp(ether(24)) != 0 {
		t.Fatalf("seller balance = %s, want 24e18 untouched", got)
	}
	if got := env.tokenBalance(t, vaultAddr); got.Sign() != 0 {
		t.Fatalf("vault balance = %s, want 0", got)
	}
	if _, err := env.engine.GetPresale(0); !errors.Is(err, ErrOfferNotFound) {
		t.Fatalf("get after rollback = %v, want ErrOfferNotFound", err)
	}
	count, err := NewLedger(env.manager).Len()
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if count != 0 {
		t.Fatalf("ledger rows = %d, want 0", count)
	}
}

func TestBuyTransfersTokensAndRetainsValue(t *testing.T) {
	env := newTestEnv(t)
	id := env.registerOffer(t, ether(24), ether(2), 500, 2_000)
	env.fundNative(t, buyer, ether(10))

	if err := env.engine.Buy(buyer, id, ether(1), ether(2)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if got := env.tokenBalance(t, buyer); got.Cmp(ether(1)) != 0 {
		t.Fatalf("buyer tokens = %s, want 1e18", got)
	}
	if got := env.tokenBalance(t, vaultAddr); got.Cmp(ether(23)) != 0 {
		t.Fatalf("vault tokens = %s, want 23e18", got)
	}
	if got := env.nativeBalance(t, vaultAddr); got.Cmp(ether(2)) != 0 {
		t.Fatalf("vault native = %s, want 2e18", got)
	}
	offer, err := env.engine.GetPresale(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if offer.Sold.Cmp(ether(1)) != 0 || offer.Raised.Cmp(ether(2)) != 0 {
		t.Fatalf("sold = %s raised = %s", offer.Sold, offer.Raised)
	}
}

func TestBuyOverpaymentIsKept(t *testing.T) {
	env := newTestEnv(t)
	id := env.registerOffer(t, ether(24), ether(2), 500, 2_000)
	env.fundNative(t, buyer, ether(10))

	if err := env.engine.Buy(buyer, id, ether(1), ether(5)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if got := env.nativeBalance(t, vaultAddr); got.Cmp(ether(5)) != 0 {
		t.Fatalf("vault native = %s, want full 5e18 retained", got)
	}
	if got := env.nativeBalance(t, buyer); got.Cmp(ether(5)) != 0 {
		t.Fatalf("buyer native = %s, want 5e18", got)
	}
}

func TestBuyGuards(t *testing.T) {
	env := newTestEnv(t)
	id := env.registerOffer(t, ether(24), ether(2), 500, 2_000)
	env.fundNative(t, buyer, ether(100))

	if err := env.engine.Buy(buyer, 99, ether(1), ether(2)); !errors.Is(err, ErrOfferNotFound) {
		t.Fatalf("missing offer err = %v", err)
	}

	env.now = 499
	if err := env.engine.Buy(buyer, id, ether(1), ether(2)); !errors.Is(err, ErrPresaleNotStarted) {
		t.Fatalf("before start err = %v", err)
	}

	env.now = 2_001
	if err := env.engine.Buy(buyer, id, ether(1), ether(2)); !errors.Is(err, ErrPresaleEnded) {
		t.Fatalf("after end err = %v", err)
	}

	env.now = 1_000
	if err := env.engine.Buy(buyer, id, ether(25), ether(50)); !errors.Is(err, ErrInsufficientInventory) {
		t.Fatalf("inventory err = %v", err)
	}
	if err := env.engine.Buy(buyer, id, ether(1), big.NewInt(1)); !errors.Is(err, ErrInsufficientPayment) {
		t.Fatalf("payment err = %v", err)
	}

	// Window boundaries are inclusive on both ends.
	env.now = 500
	if err := env.engine.Buy(buyer, id, ether(1), ether(2)); err != nil {
		t.Fatalf("buy at start: %v", err)
	}
	env.now = 2_000
	if err := env.engine.Buy(buyer, id, ether(1), ether(2)); err != nil {
		t.Fatalf("buy at end: %v", err)
	}
}

func TestBuyInsufficientNativeBalanceRollsBack(t *testing.T) {
	env := newTestEnv(t)
	id := env.registerOffer(t, ether(24), ether(2), 500, 2_000)
	// Buyer has no native balance at all.
	err := env.engine.Buy(buyer, id, ether(1), ether(2))
	if !errors.Is(err, state.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want state.ErrInsufficientBalance", err)
	}
	offer, err := env.engine.GetPresale(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if offer.Sold.Sign() != 0 {
		t.Fatalf("sold = %s after failed buy, want 0", offer.Sold)
	}
	if got := env.tokenBalance(t, vaultAddr); got.Cmp(ether(24)) != 0 {
		t.Fatalf("vault tokens = %s, want untouched 24e18", got)
	}
}

func TestEndPresaleSplitsFeeAndDepositsLiquidity(t *testing.T) {
	env := newTestEnv(t)
	id := env.registerOffer(t, ether(24), ether(2), 500, 2_000)
	env.fundNative(t, buyer, ether(10))
	if err := env.engine.Buy(buyer, id, ether(1), ether(2)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	// 3% fee for this settlement.
	if err := env.engine.ChangeFee(feeOwner, 300); err != nil {
		t.Fatalf("change fee: %v", err)
	}

	env.now = 2_001
	if err := env.engine.EndPresale(id); err != nil {
		t.Fatalf("end presale: %v", err)
	}
	if len(env.router.calls) != 1 {
		t.Fatalf("router calls = %d, want 1", len(env.router.calls))
	}
	call := env.router.calls[0]
	wantNative := new(big.Int).Quo(new(big.Int).Mul(ether(2), big.NewInt(97)), big.NewInt(100))
	if call.nativeAmount.Cmp(wantNative) != 0 {
		t.Fatalf("liquidity native = %s, want %s", call.nativeAmount, wantNative)
	}
	if call.tokenAmount.Cmp(ether(1)) != 0 {
		t.Fatalf("liquidity tokens = %s, want 1e18", call.tokenAmount)
	}
	if call.from != vaultAddr || call.token != saleToken {
		t.Fatalf("unexpected router call %+v", call)
	}
	wantFee := new(big.Int).Sub(ether(2), wantNative)
	if got := env.nativeBalance(t, feeCollector); got.Cmp(wantFee) != 0 {
		t.Fatalf("fee collector = %s, want %s", got, wantFee)
	}
	offer, err := env.engine.GetPresale(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if offer.Alive {
		t.Fatal("offer still alive after settlement")
	}
}

func TestEndPresaleGuards(t *testing.T) {
	env := newTestEnv(t)
	id := env.registerOffer(t, ether(24), ether(2), 500, 2_000)

	env.now = 2_000
	if err := env.engine.EndPresale(id); !errors.Is(err, ErrPresaleNotEnded) {
		t.Fatalf("at end err = %v, want ErrPresaleNotEnded", err)
	}
	env.now = 2_001
	if err := env.engine.EndPresale(id); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := env.engine.EndPresale(id); !errors.Is(err, ErrPresaleNotAlive) {
		t.Fatalf("second end err = %v, want ErrPresaleNotAlive", err)
	}
	if err := env.engine.EndPresale(42); !errors.Is(err, ErrOfferNotFound) {
		t.Fatalf("missing offer err = %v", err)
	}
}

func TestEndPresaleRouterFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	id := env.registerOffer(t, ether(24), ether(2), 500, 2_000)
	env.fundNative(t, buyer, ether(10))
	if err := env.engine.Buy(buyer, id, ether(1), ether(2)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	env.router.err = errors.New("pool unavailable")

	env.now = 2_001
	if err := env.engine.EndPresale(id); err == nil {
		t.Fatal("expected settlement failure")
	}
	offer, err := env.engine.GetPresale(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !offer.Alive {
		t.Fatal("offer settled despite router failure")
	}
	if got := env.nativeBalance(t, feeCollector); got.Sign() != 0 {
		t.Fatalf("fee collector = %s after failed settlement, want 0", got)
	}
	if got := env.nativeBalance(t, vaultAddr); got.Cmp(ether(2)) != 0 {
		t.Fatalf("vault native = %s, want intact 2e18", got)
	}
}

func TestEndPresaleWithNoSalesSkipsRouter(t *testing.T) {
	env := newTestEnv(t)
	id := env.registerOffer(t, ether(24), ether(2), 500, 2_000)
	env.now = 2_001
	if err := env.engine.EndPresale(id); err != nil {
		t.Fatalf("end: %v", err)
	}
	if len(env.router.calls) != 0 {
		t.Fatalf("router called %d times for empty sale", len(env.router.calls))
	}
}

func TestEndPresaleDustPriceLeavesEscrowWithdrawable(t *testing.T) {
	env := newTestEnv(t)
	// At price 1 wei the proceeds of a small sale truncate to zero, so there
	// is no native leg to deposit.
	amount := big.NewInt(1_000_000)
	env.fund(t, seller, amount)
	ids, err := env.engine.StartPresale(seller,
		[]int64{500}, []int64{2_000}, []*big.Int{big.NewInt(1)}, []*big.Int{amount}, [][20]byte{saleToken})
	if err != nil {
		t.Fatalf("start presale: %v", err)
	}
	id := ids[0]
	if err := env.engine.Buy(buyer, id, big.NewInt(1_000), big.NewInt(0)); err != nil {
		t.Fatalf("buy: %v", err)
	}

	env.now = 2_001
	if err := env.engine.EndPresale(id); err != nil {
		t.Fatalf("end: %v", err)
	}
	if len(env.router.calls) != 0 {
		t.Fatalf("router called %d times with nothing to pair", len(env.router.calls))
	}
	if err := env.engine.Withdraw(seller, id); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := env.tokenBalance(t, seller); got.Cmp(big.NewInt(999_000)) != 0 {
		t.Fatalf("seller tokens = %s, want 999000", got)
	}
}

func TestEndPresaleFullFeeSkipsRouter(t *testing.T) {
	env := newTestEnv(t)
	id := env.registerOffer(t, ether(24), ether(2), 500, 2_000)
	env.fundNative(t, buyer, ether(10))
	if err := env.engine.Buy(buyer, id, ether(1), ether(2)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if err := env.engine.ChangeFee(feeOwner, 10_000); err != nil {
		t.Fatalf("change fee: %v", err)
	}

	env.now = 2_001
	if err := env.engine.EndPresale(id); err != nil {
		t.Fatalf("end: %v", err)
	}
	if len(env.router.calls) != 0 {
		t.Fatalf("router called %d times with a zero remainder", len(env.router.calls))
	}
	if got := env.nativeBalance(t, feeCollector); got.Cmp(ether(2)) != 0 {
		t.Fatalf("fee collector = %s, want full 2e18", got)
	}
	// No pool deposit happened, so the entire unsold escrow comes back.
	if err := env.engine.Withdraw(seller, id); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := env.tokenBalance(t, seller); got.Cmp(ether(23)) != 0 {
		t.Fatalf("seller tokens = %s, want 23e18", got)
	}
}

func TestEndPresaleCapsTokenLegAtUnsoldEscrow(t *testing.T) {
	env := newTestEnv(t)
	id := env.registerOffer(t, ether(10), ether(1), 500, 2_000)
	env.fundNative(t, buyer, ether(20))
	if err := env.engine.Buy(buyer, id, ether(8), ether(8)); err != nil {
		t.Fatalf("buy: %v", err)
	}

	env.now = 2_001
	if err := env.engine.EndPresale(id); err != nil {
		t.Fatalf("end: %v", err)
	}
	if len(env.router.calls) != 1 {
		t.Fatalf("router calls = %d, want 1", len(env.router.calls))
	}
	// Only 2e18 remain unsold, so the deposit cannot mirror the full 8e18.
	if got := env.router.calls[0].tokenAmount; got.Cmp(ether(2)) != 0 {
		t.Fatalf("liquidity tokens = %s, want 2e18", got)
	}
	// Everything is either sold or in the pool: the owner has nothing left.
	if err := env.engine.Withdraw(seller, id); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := env.tokenBalance(t, seller); got.Sign() != 0 {
		t.Fatalf("seller tokens = %s, want 0", got)
	}
	offer, err := env.engine.GetPresale(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !offer.Withdrawn || offer.PoolTokens.Cmp(ether(2)) != 0 {
		t.Fatalf("offer state %+v", offer)
	}
}

func TestWithdrawReturnsUnsoldOnce(t *testing.T) {
	env := newTestEnv(t)
	id := env.registerOffer(t, ether(24), ether(2), 500, 2_000)
	env.fundNative(t, buyer, ether(10))
	if err := env.engine.Buy(buyer, id, ether(1), ether(2)); err != nil {
		t.Fatalf("buy: %v", err)
	}

	if err := env.engine.Withdraw(seller, id); !errors.Is(err, ErrPresaleAlive) {
		t.Fatalf("withdraw while alive err = %v", err)
	}

	env.now = 2_001
	if err := env.engine.EndPresale(id); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := env.engine.Withdraw(buyer, id); !errors.Is(err, ErrNotPresaleOwner) {
		t.Fatalf("stranger withdraw err = %v", err)
	}
	if err := env.engine.Withdraw(seller, id); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	// 24e18 escrowed, 1e18 sold, 1e18 consumed by the liquidity deposit.
	if got := env.tokenBalance(t, seller); got.Cmp(ether(22)) != 0 {
		t.Fatalf("seller tokens = %s, want 22e18", got)
	}
	if err := env.engine.Withdraw(seller, id); !errors.Is(err, ErrAlreadyWithdrawn) {
		t.Fatalf("second withdraw err = %v", err)
	}
	if got := env.tokenBalance(t, seller); got.Cmp(ether(22)) != 0 {
		t.Fatalf("seller tokens after second attempt = %s, want unchanged", got)
	}
}

func TestChangeFeePolicy(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.ChangeFee(seller, 100); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("stranger change err = %v", err)
	}
	if err := env.engine.ChangeFee(feeOwner, 10_001); !errors.Is(err, ErrFeeBpsOutOfRange) {
		t.Fatalf("range err = %v", err)
	}
	if err := env.engine.ChangeFee(feeOwner, 500); err != nil {
		t.Fatalf("change fee: %v", err)
	}
	bps, err := env.engine.FeeBps()
	if err != nil {
		t.Fatalf("fee bps: %v", err)
	}
	if bps != 500 {
		t.Fatalf("bps = %d, want 500", bps)
	}
}

func TestTokenConservationAcrossLifecycle(t *testing.T) {
	env := newTestEnv(t)
	id := env.registerOffer(t, ether(24), ether(2), 500, 2_000)
	env.fundNative(t, buyer, ether(50))

	total := func() *big.Int {
		sum := new(big.Int).Add(env.tokenBalance(t, seller), env.tokenBalance(t, buyer))
		return sum.Add(sum, env.tokenBalance(t, vaultAddr))
	}
	if got := total(); got.Cmp(ether(24)) != 0 {
		t.Fatalf("total after registration = %s", got)
	}
	for i := 0; i < 3; i++ {
		if err := env.engine.Buy(buyer, id, ether(2), ether(4)); err != nil {
			t.Fatalf("buy %d: %v", i, err)
		}
		if got := total(); got.Cmp(ether(24)) != 0 {
			t.Fatalf("total after buy %d = %s", i, got)
		}
	}
	env.now = 2_001
	if err := env.engine.EndPresale(id); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := env.engine.Withdraw(seller, id); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	// 6e18 sold to the buyer, 6e18 earmarked for the pool deposit, 12e18 back
	// to the seller.
	if got := env.tokenBalance(t, buyer); got.Cmp(ether(6)) != 0 {
		t.Fatalf("buyer tokens = %s", got)
	}
	if got := env.tokenBalance(t, seller); got.Cmp(ether(12)) != 0 {
		t.Fatalf("seller tokens = %s", got)
	}
}
