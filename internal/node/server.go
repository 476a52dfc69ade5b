package node

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"solana-escrow-lab/internal/ledger"
	"solana-escrow-lab/internal/observability"
	"solana-escrow-lab/internal/solana"
	"solana-escrow-lab/internal/token"
)

// maxRequestBody bounds a JSON-RPC request body.
const maxRequestBody = 64 << 10

// Server exposes a Node over JSON-RPC 2.0 on HTTP POST and logs
// subscriptions over a websocket upgrade of the same path.
type Server struct {
	node     *Node
	router   *mux.Router
	upgrader websocket.Upgrader
	methods  map[string]rpcMethod
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

type rpcMethod func(params []json.RawMessage) (any, error)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerMetrics records per-method RPC metrics and serves /metrics.
func WithServerMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithServerLogger sets the request logger.
func WithServerLogger(l zerolog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer builds the router for n.
func NewServer(n *Node, opts ...ServerOption) *Server {
	s := &Server{
		node:   n,
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "rpc").Logger()

	s.methods = map[string]rpcMethod{
		"getHealth":               s.getHealth,
		"getSlot":                 s.getSlot,
		"getBalance":              s.getBalance,
		"getAccountInfo":          s.getAccountInfo,
		"getTokenAccountBalance":  s.getTokenAccountBalance,
		"getTransaction":          s.getTransaction,
		"getSignaturesForAddress": s.getSignaturesForAddress,
		"sendTransaction":         s.sendTransaction,
		"requestAirdrop":          s.requestAirdrop,
	}

	s.router.Use(s.logRequests)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	s.router.HandleFunc("/", s.handleWS).Methods(http.MethodGet).HeadersRegexp("Upgrade", "(?i)^websocket$")
	s.router.HandleFunc("/", s.handleRPC).Methods(http.MethodPost)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		s.writeRPC(w, 0, nil, rpcError(solana.CodeParseError, "Parse error"))
		return
	}
	if len(body) > maxRequestBody {
		s.writeRPC(w, 0, nil, rpcError(solana.CodeInvalidRequest, "request too large"))
		return
	}

	var req solana.RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeRPC(w, 0, nil, rpcError(solana.CodeParseError, "Parse error"))
		return
	}
	result, rpcErr := s.dispatch(&req)
	s.writeRPC(w, req.ID, result, rpcErr)
}

// dispatch runs one request and converts its outcome into a result or an RPC error.
func (s *Server) dispatch(req *solana.RPCRequest) (any, *solana.RPCError) {
	if req.JSONRPC != "2.0" || req.Method == "" {
		return nil, rpcError(solana.CodeInvalidRequest, "Invalid Request")
	}
	method, ok := s.methods[req.Method]
	if !ok {
		s.metrics.RecordRPC("unknown", errors.New("method not found"), 0)
		return nil, rpcError(solana.CodeMethodNotFound, "Method not found")
	}

	start := time.Now()
	result, err := method(req.Params)
	s.metrics.RecordRPC(req.Method, err, time.Since(start).Seconds())
	if err != nil {
		return nil, toRPCError(err)
	}
	return result, nil
}

func (s *Server) writeRPC(w http.ResponseWriter, id uint64, result any, rpcErr *solana.RPCError) {
	resp := solana.RPCResponse{JSONRPC: "2.0", ID: id, Error: rpcErr}
	if rpcErr == nil {
		raw, err := json.Marshal(result)
		if err != nil {
			resp.Error = rpcError(solana.CodeInternalError, err.Error())
		} else {
			resp.Result = raw
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn().Err(err).Msg("write rpc response")
	}
}

func rpcError(code int, msg string) *solana.RPCError {
	return &solana.RPCError{Code: code, Message: msg}
}

// paramError marks a request whose params could not be decoded.
type paramError struct{ msg string }

func (e *paramError) Error() string { return e.msg }

func invalidParams(format string, args ...any) error {
	return &paramError{msg: fmt.Sprintf(format, args...)}
}

// toRPCError maps node and ledger errors onto JSON-RPC codes.
func toRPCError(err error) *solana.RPCError {
	var (
		pe     *paramError
		failed *TxFailedError
	)
	switch {
	case errors.As(err, &pe):
		return rpcError(solana.CodeInvalidParams, "Invalid params: "+pe.msg)
	case errors.As(err, &failed):
		return &solana.RPCError{
			Code:    solana.CodeTransactionFailed,
			Message: "Transaction simulation failed: " + failed.Err.Error(),
			Data: &solana.TransactionFail{
				Err:          failed.Err.Error(),
				Instruction:  failed.Instruction(),
				ProgramError: failed.ProgramError(),
				Logs:         failed.Receipt.Logs,
			},
		}
	case errors.Is(err, ErrDuplicateTransaction):
		return rpcError(solana.CodeTransactionFailed, "Transaction simulation failed: This transaction has already been processed")
	case errors.Is(err, ledger.ErrSignatureCount), errors.Is(err, ledger.ErrSignatureInvalid):
		return rpcError(solana.CodeSignatureFailure, "Transaction signature verification failure: "+err.Error())
	case errors.Is(err, ledger.ErrMalformedTransaction), errors.Is(err, ledger.ErrTransactionTooLarge),
		errors.Is(err, ErrNotTokenAccount), errors.Is(err, ErrUnknownSignature), errors.Is(err, ErrInvalidAirdrop):
		return rpcError(solana.CodeInvalidParams, "Invalid params: "+err.Error())
	case errors.Is(err, ErrAirdropLimit), errors.Is(err, ErrAirdropRateLimited):
		return rpcError(solana.CodeAirdropLimitExceeded, err.Error())
	}
	return rpcError(solana.CodeInternalError, "Internal error: "+err.Error())
}

// param decodes params[i] into v; optional params may be absent.
func param(params []json.RawMessage, i int, v any, optional bool) error {
	if i >= len(params) || string(params[i]) == "null" {
		if optional {
			return nil
		}
		return invalidParams("missing parameter %d", i)
	}
	if err := json.Unmarshal(params[i], v); err != nil {
		return invalidParams("parameter %d: %v", i, err)
	}
	return nil
}

func pubkeyParam(params []json.RawMessage, i int) (solana.PublicKey, error) {
	var s string
	if err := param(params, i, &s, false); err != nil {
		return solana.PublicKey{}, err
	}
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, invalidParams("%v", err)
	}
	return pk, nil
}

type encodingConfig struct {
	Encoding string `json:"encoding"`
}

func (s *Server) context() solana.RPCContext {
	return solana.RPCContext{Slot: int64(s.node.Slot())}
}

func (s *Server) getHealth(_ []json.RawMessage) (any, error) {
	return "ok", nil
}

func (s *Server) getSlot(_ []json.RawMessage) (any, error) {
	return s.node.Slot(), nil
}

func (s *Server) getBalance(params []json.RawMessage) (any, error) {
	pk, err := pubkeyParam(params, 0)
	if err != nil {
		return nil, err
	}
	return solana.BalanceResult{Context: s.context(), Value: s.node.Balance(pk)}, nil
}

func (s *Server) getAccountInfo(params []json.RawMessage) (any, error) {
	pk, err := pubkeyParam(params, 0)
	if err != nil {
		return nil, err
	}
	var cfg encodingConfig
	if err := param(params, 1, &cfg, true); err != nil {
		return nil, err
	}
	if cfg.Encoding != "" && cfg.Encoding != "base64" {
		return nil, invalidParams("unsupported encoding %q", cfg.Encoding)
	}

	result := solana.AccountInfoResult{Context: s.context()}
	if acc, ok := s.node.Account(pk); ok {
		result.Value = &solana.AccountInfoValue{
			Lamports:   acc.Lamports,
			Owner:      acc.Owner.String(),
			Data:       []string{base64.StdEncoding.EncodeToString(acc.Data), "base64"},
			Executable: acc.Executable,
			Space:      len(acc.Data),
		}
	}
	return result, nil
}

func (s *Server) getTokenAccountBalance(params []json.RawMessage) (any, error) {
	pk, err := pubkeyParam(params, 0)
	if err != nil {
		return nil, err
	}
	amount, decimals, err := s.node.TokenBalance(pk)
	if err != nil {
		return nil, err
	}
	return solana.TokenBalanceResult{
		Context: s.context(),
		Value: solana.TokenAmount{
			Amount:         fmt.Sprintf("%d", amount),
			Decimals:       decimals,
			UIAmountString: token.FormatAmount(amount, decimals),
		},
	}, nil
}

func (s *Server) getTransaction(params []json.RawMessage) (any, error) {
	var sig string
	if err := param(params, 0, &sig, false); err != nil {
		return nil, err
	}
	rec, ok := s.node.Transaction(sig)
	if !ok {
		return nil, nil
	}
	blockTime := rec.BlockTime
	return solana.TransactionResult{
		Slot:      int64(rec.Slot),
		BlockTime: &blockTime,
		Meta:      &solana.TransactionMetaResult{LogMessages: rec.Logs},
		Transaction: &solana.TransactionBody{
			Signatures: []string{rec.Signature},
			Message:    &solana.TransactionMessageResult{AccountKeys: rec.AccountKeys},
		},
	}, nil
}

type signaturesConfig struct {
	Before string `json:"before"`
	Until  string `json:"until"`
	Limit  int    `json:"limit"`
}

func (s *Server) getSignaturesForAddress(params []json.RawMessage) (any, error) {
	pk, err := pubkeyParam(params, 0)
	if err != nil {
		return nil, err
	}
	var cfg signaturesConfig
	if err := param(params, 1, &cfg, true); err != nil {
		return nil, err
	}

	recs, err := s.node.SignaturesForAddress(pk, cfg.Before, cfg.Until, cfg.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]solana.SignatureResult, len(recs))
	for i, rec := range recs {
		blockTime := rec.BlockTime
		out[i] = solana.SignatureResult{Signature: rec.Signature, Slot: int64(rec.Slot), BlockTime: &blockTime}
	}
	return out, nil
}

func (s *Server) sendTransaction(params []json.RawMessage) (any, error) {
	var encoded string
	if err := param(params, 0, &encoded, false); err != nil {
		return nil, err
	}
	var cfg encodingConfig
	if err := param(params, 1, &cfg, true); err != nil {
		return nil, err
	}
	if cfg.Encoding != "" && cfg.Encoding != "base64" {
		return nil, invalidParams("unsupported encoding %q", cfg.Encoding)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, invalidParams("transaction: %v", err)
	}
	return s.node.SendTransaction(raw)
}

func (s *Server) requestAirdrop(params []json.RawMessage) (any, error) {
	pk, err := pubkeyParam(params, 0)
	if err != nil {
		return nil, err
	}
	var lamports uint64
	if err := param(params, 1, &lamports, false); err != nil {
		return nil, err
	}
	return s.node.Airdrop(pk, lamports)
}

// statusRecorder captures the status code and keeps websocket upgrades working.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		event := s.logger.Debug()
		if rec.status >= 500 {
			event = s.logger.Error()
		} else if rec.status >= 400 {
			event = s.logger.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Str("client_ip", r.RemoteAddr).
			Int("bytes", rec.bytes).
			Msg("http_request")
	})
}
