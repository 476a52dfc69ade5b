package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"solana-escrow-lab/internal/observability"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 500 * time.Millisecond
	DefaultMaxDelay   = 10 * time.Second

	// maxResponseSize bounds a single JSON-RPC response body.
	maxResponseSize = 16 << 20
)

// HTTPClient talks JSON-RPC 2.0 to a node over HTTP. Transport failures,
// 429 and 5xx responses are retried with exponential backoff; JSON-RPC
// errors are returned as *RPCError without retrying.
type HTTPClient struct {
	endpoint   string
	http       *http.Client
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
	nextID     atomic.Uint64
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.http.Timeout = d }
}

// WithMaxRetries sets how many times a failed attempt is repeated. Zero disables retries.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) { c.maxRetries = n }
}

// WithRetryDelay sets the first backoff delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.retryDelay = d }
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.maxDelay = d }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) { c.http = hc }
}

// WithMetrics records call counts and latency by method.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *HTTPClient) { c.metrics = m }
}

// WithLogger logs retried attempts at debug level.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *HTTPClient) { c.logger = l }
}

// NewHTTPClient returns a client for the node at endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:   endpoint,
		http:       &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		maxDelay:   DefaultMaxDelay,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type encodingConfig struct {
	Encoding string `json:"encoding"`
}

type signaturesConfig struct {
	Before string `json:"before,omitempty"`
	Until  string `json:"until,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// httpStatusError is a non-200 answer. retryAfter is zero when the server
// sent no usable Retry-After header.
type httpStatusError struct {
	code       int
	body       string
	retryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.code, e.body)
}

// retryable reports whether another attempt may succeed.
func retryable(err error) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.code == http.StatusTooManyRequests || statusErr.code >= 500
	}
	return true
}

func (c *HTTPClient) call(ctx context.Context, method string, params []any, result any) (err error) {
	start := time.Now()
	defer func() { c.metrics.RecordRPC(method, err, time.Since(start).Seconds()) }()

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", method, err)
	}

	delay := c.retryDelay
	for attempt := 0; ; attempt++ {
		err = c.attempt(ctx, body, result)
		if err == nil || !retryable(err) {
			return err
		}
		if attempt >= c.maxRetries {
			return fmt.Errorf("%s: giving up after %d attempts: %w", method, attempt+1, err)
		}

		wait := delay
		var statusErr *httpStatusError
		if errors.As(err, &statusErr) && statusErr.retryAfter > 0 {
			wait = statusErr.retryAfter
		}
		wait = min(wait, c.maxDelay)
		c.logger.Debug().Str("method", method).Int("attempt", attempt+1).Dur("wait", wait).Err(err).Msg("rpc retry")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, c.maxDelay)
	}
}

// attempt performs one HTTP round trip and decodes the envelope into result.
func (c *HTTPClient) attempt(ctx context.Context, body []byte, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		statusErr := &httpStatusError{code: resp.StatusCode, body: string(bytes.TrimSpace(data))}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			statusErr.retryAfter = time.Duration(secs) * time.Second
		}
		return statusErr
	}

	var envelope RPCResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if result == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		// A result that does not decode will not decode on retry either.
		return &RPCError{Code: CodeInternalError, Message: "decode result: " + err.Error()}
	}
	return nil
}

// SendTransaction submits a signed wire transaction.
func (c *HTTPClient) SendTransaction(ctx context.Context, tx []byte) (string, error) {
	var sig string
	err := c.call(ctx, "sendTransaction",
		[]any{base64.StdEncoding.EncodeToString(tx), encodingConfig{Encoding: "base64"}}, &sig)
	return sig, err
}

// RequestAirdrop asks the node faucet for lamports.
func (c *HTTPClient) RequestAirdrop(ctx context.Context, pubkey string, lamports uint64) (string, error) {
	var sig string
	err := c.call(ctx, "requestAirdrop", []any{pubkey, lamports}, &sig)
	return sig, err
}

// GetAccountInfo returns nil, nil for a missing account.
func (c *HTTPClient) GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error) {
	var res AccountInfoResult
	if err := c.call(ctx, "getAccountInfo", []any{pubkey, encodingConfig{Encoding: "base64"}}, &res); err != nil {
		return nil, err
	}
	v := res.Value
	if v == nil {
		return nil, nil
	}

	owner, err := PublicKeyFromBase58(v.Owner)
	if err != nil {
		return nil, fmt.Errorf("account %s owner: %w", pubkey, err)
	}
	info := &AccountInfo{Lamports: v.Lamports, Owner: owner, Executable: v.Executable}
	if len(v.Data) > 0 {
		if info.Data, err = base64.StdEncoding.DecodeString(v.Data[0]); err != nil {
			return nil, fmt.Errorf("account %s data: %w", pubkey, err)
		}
	}
	return info, nil
}

func (c *HTTPClient) GetBalance(ctx context.Context, pubkey string) (uint64, error) {
	var res BalanceResult
	err := c.call(ctx, "getBalance", []any{pubkey}, &res)
	return res.Value, err
}

func (c *HTTPClient) GetTokenAccountBalance(ctx context.Context, pubkey string) (*TokenAmount, error) {
	var res TokenBalanceResult
	if err := c.call(ctx, "getTokenAccountBalance", []any{pubkey}, &res); err != nil {
		return nil, err
	}
	return &res.Value, nil
}

// RawAmount parses Amount as base units.
func (a *TokenAmount) RawAmount() (uint64, error) {
	return strconv.ParseUint(a.Amount, 10, 64)
}

func (c *HTTPClient) GetSlot(ctx context.Context) (int64, error) {
	var slot int64
	err := c.call(ctx, "getSlot", nil, &slot)
	return slot, err
}

// GetTransaction returns nil, nil for an unknown signature.
func (c *HTTPClient) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	var res *TransactionResult
	if err := c.call(ctx, "getTransaction", []any{signature, encodingConfig{Encoding: "json"}}, &res); err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}

	tx := &Transaction{Slot: res.Slot, Signature: signature}
	if res.BlockTime != nil {
		tx.BlockTime = *res.BlockTime
	}
	if m := res.Meta; m != nil {
		tx.Meta = &TransactionMeta{Err: m.Err, LogMessages: m.LogMessages}
	}
	if res.Transaction != nil && res.Transaction.Message != nil {
		tx.Message = &TransactionMessage{AccountKeys: res.Transaction.Message.AccountKeys}
	}
	return tx, nil
}

// GetSignaturesForAddress pages through signatures mentioning address, newest first.
func (c *HTTPClient) GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error) {
	params := []any{address}
	if opts != nil && *opts != (SignaturesOpts{}) {
		params = append(params, signaturesConfig{Before: opts.Before, Until: opts.Until, Limit: opts.Limit})
	}

	var res []SignatureResult
	if err := c.call(ctx, "getSignaturesForAddress", params, &res); err != nil {
		return nil, err
	}
	out := make([]SignatureInfo, len(res))
	for i, r := range res {
		out[i] = SignatureInfo(r)
	}
	return out, nil
}

var _ RPCClient = (*HTTPClient)(nil)
