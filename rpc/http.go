package rpc

import (
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"felixpad/native/presale"
	"felixpad/native/token"
	"felixpad/observability/metrics"
	"felixpad/state"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

// RPCRequest is the JSON-RPC style envelope accepted on POST /rpc.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// Server exposes the presale operation surface over HTTP. Every mutating
// method runs under a single mutex: one operation completes fully, including
// its external-collaborator calls, before the next begins.
type Server struct {
	mu      sync.Mutex
	engine  *presale.Engine
	tokens  *token.Ledger
	states  *state.Manager
	logger  *slog.Logger
	limiter *rate.Limiter
	metrics *metrics.PresaleMetrics
}

// NewServer wires the RPC surface over the engine and its collaborators.
func NewServer(engine *presale.Engine, tokens *token.Ledger, states *state.Manager, logger *slog.Logger, rps float64) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if rps <= 0 {
		rps = 50
	}
	return &Server{
		engine:  engine,
		tokens:  tokens,
		states:  states,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)),
		metrics: metrics.Presale(),
	}
}

// Handler builds the chi route tree: the RPC endpoint plus health and
// prometheus scraping.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.rateLimit)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/rpc", s.handleRPC)
	return r
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	s.logger.Debug("rpc request", slog.String("method", method), slog.String("requestId", w.Header().Get("X-Request-Id")))

	switch method {
	case "presale_start":
		s.handlePresaleStart(w, &req)
	case "presale_buy":
		s.handlePresaleBuy(w, &req)
	case "presale_end":
		s.handlePresaleEnd(w, &req)
	case "presale_withdraw":
		s.handlePresaleWithdraw(w, &req)
	case "presale_changeFee":
		s.handlePresaleChangeFee(w, &req)
	case "presale_get":
		s.handlePresaleGet(w, &req)
	case "presale_feeBps":
		s.handlePresaleFeeBps(w, &req)
	case "token_register":
		s.handleTokenRegister(w, &req)
	case "token_mint":
		s.handleTokenMint(w, &req)
	case "token_approve":
		s.handleTokenApprove(w, &req)
	case "token_balanceOf":
		s.handleTokenBalanceOf(w, &req)
	case "native_balanceOf":
		s.handleNativeBalanceOf(w, &req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "unknown method "+method, nil)
	}
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func writeError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message, Data: data}})
}

func parseAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, err
	}
	if len(decoded) != 20 {
		return addr, errBadAddressLength
	}
	copy(addr[:], decoded)
	return addr, nil
}

func parseBig(raw string) (*big.Int, bool) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || value.Sign() < 0 {
		return nil, false
	}
	return value, true
}

func parseBigSlice(raw []string) ([]*big.Int, bool) {
	values := make([]*big.Int, 0, len(raw))
	for _, item := range raw {
		value, ok := parseBig(item)
		if !ok {
			return nil, false
		}
		values = append(values, value)
	}
	return values, true
}

func parseAddressSlice(raw []string) ([][20]byte, error) {
	addrs := make([][20]byte, 0, len(raw))
	for _, item := range raw {
		addr, err := parseAddress(item)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}
