package rpc

import (
	"encoding/json"
	"net/http"

	"felixpad/native/token"
)

type tokenRegisterParams struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Mintable bool   `json:"mintable"`
}

func (s *Server) handleTokenRegister(w http.ResponseWriter, req *RPCRequest) {
	var params tokenRegisterParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token address", err.Error())
		return
	}
	s.mu.Lock()
	err = s.tokens.Register(&token.Metadata{
		Address:  addr,
		Name:     params.Name,
		Symbol:   params.Symbol,
		Decimals: params.Decimals,
		Mintable: params.Mintable,
	})
	if err == nil {
		s.states.Finalise()
	}
	s.mu.Unlock()
	if err != nil {
		s.writeEngineError(w, req.ID, "tokenRegister", err)
		return
	}
	writeResult(w, req.ID, true)
}

type tokenMintParams struct {
	Token  string `json:"token"`
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

// handleTokenMint mints sale-token units to the caller, the faucet-style
// capability participants use to acquire presale inventory.
func (s *Server) handleTokenMint(w http.ResponseWriter, req *RPCRequest) {
	var params tokenMintParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	tokenAddr, err := parseAddress(params.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token address", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	amount, ok := parseBig(params.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", nil)
		return
	}
	s.mu.Lock()
	err = s.tokens.Mint(tokenAddr, caller, amount)
	if err == nil {
		s.states.Finalise()
	}
	s.mu.Unlock()
	if err != nil {
		s.writeEngineError(w, req.ID, "tokenMint", err)
		return
	}
	writeResult(w, req.ID, true)
}

type tokenApproveParams struct {
	Token   string `json:"token"`
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

func (s *Server) handleTokenApprove(w http.ResponseWriter, req *RPCRequest) {
	var params tokenApproveParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	tokenAddr, err := parseAddress(params.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token address", err.Error())
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", err.Error())
		return
	}
	spender, err := parseAddress(params.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid spender address", err.Error())
		return
	}
	amount, ok := parseBig(params.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", nil)
		return
	}
	s.mu.Lock()
	err = s.tokens.Approve(tokenAddr, owner, spender, amount)
	if err == nil {
		s.states.Finalise()
	}
	s.mu.Unlock()
	if err != nil {
		s.writeEngineError(w, req.ID, "tokenApprove", err)
		return
	}
	writeResult(w, req.ID, true)
}

type tokenBalanceParams struct {
	Token  string `json:"token"`
	Holder string `json:"holder"`
}

func (s *Server) handleTokenBalanceOf(w http.ResponseWriter, req *RPCRequest) {
	var params tokenBalanceParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	tokenAddr, err := parseAddress(params.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token address", err.Error())
		return
	}
	holder, err := parseAddress(params.Holder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid holder address", err.Error())
		return
	}
	balance, err := s.tokens.BalanceOf(tokenAddr, holder)
	if err != nil {
		s.writeEngineError(w, req.ID, "tokenBalanceOf", err)
		return
	}
	writeResult(w, req.ID, balance.String())
}

type nativeBalanceParams struct {
	Address string `json:"address"`
}

func (s *Server) handleNativeBalanceOf(w http.ResponseWriter, req *RPCRequest) {
	var params nativeBalanceParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	account, err := s.states.GetAccount(addr)
	if err != nil {
		s.writeEngineError(w, req.ID, "nativeBalanceOf", err)
		return
	}
	writeResult(w, req.ID, account.BalanceWei.String())
}
