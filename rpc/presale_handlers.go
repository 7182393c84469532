package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"felixpad/native/presale"
	"felixpad/native/token"
)

var errBadAddressLength = errors.New("rpc: address must be 20 bytes")

// guard failures are the caller's fault and come back as 400s; anything else
// is a server-side 500.
var guardErrors = []error{
	presale.ErrArityMismatch,
	presale.ErrInvalidOffer,
	presale.ErrOfferNotFound,
	presale.ErrPresaleNotStarted,
	presale.ErrPresaleEnded,
	presale.ErrInsufficientInventory,
	presale.ErrInsufficientPayment,
	presale.ErrPresaleNotAlive,
	presale.ErrPresaleNotEnded,
	presale.ErrPresaleAlive,
	presale.ErrAlreadyWithdrawn,
	presale.ErrNotPresaleOwner,
	presale.ErrNotOwner,
	presale.ErrFeeBpsOutOfRange,
	token.ErrInsufficientBalance,
	token.ErrInsufficientAllowance,
	token.ErrTokenNotFound,
	token.ErrTokenExists,
	token.ErrNotMintable,
}

func isGuardError(err error) bool {
	for _, guard := range guardErrors {
		if errors.Is(err, guard) {
			return true
		}
	}
	return false
}

// observeCustody refreshes the native-custody gauge from the vault account
// after an operation that moved native currency.
func (s *Server) observeCustody() {
	account, err := s.states.GetAccount(s.engine.Vault())
	if err != nil {
		return
	}
	custody, _ := new(big.Float).SetInt(account.BalanceWei).Float64()
	s.metrics.SetNativeCustody(custody)
}

func (s *Server) writeEngineError(w http.ResponseWriter, id json.RawMessage, op string, err error) {
	if isGuardError(err) {
		s.metrics.ObserveGuardRejection(op)
		writeError(w, http.StatusBadRequest, id, codeServerError, err.Error(), nil)
		return
	}
	s.logger.Error("rpc operation failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, id, codeServerError, err.Error(), nil)
}

type presaleStartParams struct {
	Caller  string   `json:"caller"`
	Starts  []int64  `json:"starts"`
	Ends    []int64  `json:"ends"`
	Prices  []string `json:"prices"`
	Amounts []string `json:"amounts"`
	Tokens  []string `json:"tokens"`
}

type presaleStartResult struct {
	OfferIDs []uint64 `json:"offerIds"`
}

func (s *Server) handlePresaleStart(w http.ResponseWriter, req *RPCRequest) {
	var params presaleStartParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	prices, ok := parseBigSlice(params.Prices)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid price", nil)
		return
	}
	amounts, ok := parseBigSlice(params.Amounts)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", nil)
		return
	}
	tokens, err := parseAddressSlice(params.Tokens)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token address", err.Error())
		return
	}

	s.mu.Lock()
	ids, err := s.engine.StartPresale(caller, params.Starts, params.Ends, prices, amounts, tokens)
	s.mu.Unlock()
	if err != nil {
		s.writeEngineError(w, req.ID, "start", err)
		return
	}
	s.metrics.ObserveOffersRegistered(len(ids))
	writeResult(w, req.ID, presaleStartResult{OfferIDs: ids})
}

type presaleBuyParams struct {
	Caller      string `json:"caller"`
	OfferID     uint64 `json:"offerId"`
	TokenAmount string `json:"tokenAmount"`
	Value       string `json:"value"`
}

func (s *Server) handlePresaleBuy(w http.ResponseWriter, req *RPCRequest) {
	var params presaleBuyParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	tokenAmount, ok := parseBig(params.TokenAmount)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token amount", nil)
		return
	}
	value, ok := parseBig(params.Value)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid value", nil)
		return
	}

	s.mu.Lock()
	err = s.engine.Buy(caller, params.OfferID, tokenAmount, value)
	s.mu.Unlock()
	if err != nil {
		s.writeEngineError(w, req.ID, "buy", err)
		return
	}
	s.metrics.ObservePurchase()
	s.observeCustody()
	writeResult(w, req.ID, true)
}

type presaleIDParams struct {
	OfferID uint64 `json:"offerId"`
}

func (s *Server) handlePresaleEnd(w http.ResponseWriter, req *RPCRequest) {
	var params presaleIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	s.mu.Lock()
	err := s.engine.EndPresale(params.OfferID)
	s.mu.Unlock()
	if err != nil {
		s.writeEngineError(w, req.ID, "end", err)
		return
	}
	s.metrics.ObserveSettlement()
	s.observeCustody()
	writeResult(w, req.ID, true)
}

type presaleWithdrawParams struct {
	Caller  string `json:"caller"`
	OfferID uint64 `json:"offerId"`
}

func (s *Server) handlePresaleWithdraw(w http.ResponseWriter, req *RPCRequest) {
	var params presaleWithdrawParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	s.mu.Lock()
	err = s.engine.Withdraw(caller, params.OfferID)
	s.mu.Unlock()
	if err != nil {
		s.writeEngineError(w, req.ID, "withdraw", err)
		return
	}
	s.metrics.ObserveWithdrawal()
	writeResult(w, req.ID, true)
}

type presaleChangeFeeParams struct {
	Caller string `json:"caller"`
	FeeBps uint32 `json:"feeBps"`
}

func (s *Server) handlePresaleChangeFee(w http.ResponseWriter, req *RPCRequest) {
	var params presaleChangeFeeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	s.mu.Lock()
	err = s.engine.ChangeFee(caller, params.FeeBps)
	s.mu.Unlock()
	if err != nil {
		s.writeEngineError(w, req.ID, "changeFee", err)
		return
	}
	writeResult(w, req.ID, true)
}

type offerResult struct {
	ID         uint64 `json:"id"`
	Owner      string `json:"owner"`
	Token      string `json:"token"`
	Start      int64  `json:"start"`
	End        int64  `json:"end"`
	PriceWei   string `json:"priceWei"`
	Amount     string `json:"amount"`
	Sold       string `json:"sold"`
	Raised     string `json:"raised"`
	PoolTokens string `json:"poolTokens"`
	Alive      bool   `json:"alive"`
	Withdrawn  bool   `json:"withdrawn"`
	CreatedAt  int64  `json:"createdAt"`
}

func formatOffer(offer *presale.Offer) *offerResult {
	return &offerResult{
		ID:         offer.ID,
		Owner:      "0x" + hex.EncodeToString(offer.Owner[:]),
		Token:      "0x" + hex.EncodeToString(offer.Token[:]),
		Start:      offer.Start,
		End:        offer.End,
		PriceWei:   offer.PriceWei.String(),
		Amount:     offer.Amount.String(),
		Sold:       offer.Sold.String(),
		Raised:     offer.Raised.String(),
		PoolTokens: offer.PoolTokens.String(),
		Alive:      offer.Alive,
		Withdrawn:  offer.Withdrawn,
		CreatedAt:  offer.CreatedAt,
	}
}

func (s *Server) handlePresaleGet(w http.ResponseWriter, req *RPCRequest) {
	var params presaleIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	offer, err := s.engine.GetPresale(params.OfferID)
	if err != nil {
		s.writeEngineError(w, req.ID, "get", err)
		return
	}
	writeResult(w, req.ID, formatOffer(offer))
}

func (s *Server) handlePresaleFeeBps(w http.ResponseWriter, req *RPCRequest) {
	bps, err := s.engine.FeeBps()
	if err != nil {
		s.writeEngineError(w, req.ID, "feeBps", err)
		return
	}
	writeResult(w, req.ID, bps)
}
