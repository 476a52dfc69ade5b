package stub

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"solana-escrow-lab/internal/solana"
)

// ErrNotImplemented is returned by write methods the stub does not simulate.
var ErrNotImplemented = errors.New("not implemented by stub")

// RPCClient implements solana.RPCClient over in-memory maps for testing.
type RPCClient struct {
	mu           sync.Mutex
	Transactions map[string]*solana.Transaction
	Signatures   map[string][]solana.SignatureInfo // newest first
	Accounts     map[string]*solana.AccountInfo
	Slot         int64

	// Calls counts invocations by method name.
	Calls map[string]int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Signatures:   make(map[string][]solana.SignatureInfo),
		Accounts:     make(map[string]*solana.AccountInfo),
		Calls:        make(map[string]int),
	}
}

func (c *RPCClient) count(method string) {
	c.Calls[method]++
}

// SendTransaction is not simulated.
func (c *RPCClient) SendTransaction(_ context.Context, _ []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("sendTransaction")
	return "", ErrNotImplemented
}

// RequestAirdrop credits lamports to the stored account, creating it when missing.
func (c *RPCClient) RequestAirdrop(_ context.Context, pubkey string, lamports uint64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("requestAirdrop")

	acc, ok := c.Accounts[pubkey]
	if !ok {
		acc = &solana.AccountInfo{Owner: solana.SystemProgramID}
		c.Accounts[pubkey] = acc
	}
	acc.Lamports += lamports
	c.Slot++
	return "airdrop-" + pubkey + "-" + strconv.FormatInt(c.Slot, 10), nil
}

// GetAccountInfo returns a copy of the stored account or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("getAccountInfo")

	acc, ok := c.Accounts[pubkey]
	if !ok {
		return nil, nil
	}
	cp := *acc
	cp.Data = append([]byte(nil), acc.Data...)
	return &cp, nil
}

// GetBalance returns the stored lamports, zero when missing.
func (c *RPCClient) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("getBalance")

	if acc, ok := c.Accounts[pubkey]; ok {
		return acc.Lamports, nil
	}
	return 0, nil
}

// GetTokenAccountBalance is not simulated.
func (c *RPCClient) GetTokenAccountBalance(_ context.Context, _ string) (*solana.TokenAmount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("getTokenAccountBalance")
	return nil, ErrNotImplemented
}

// GetSlot returns Slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("getSlot")
	return c.Slot, nil
}

// GetTransaction retrieves a transaction by signature, nil when unknown.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("getTransaction")
	return c.Transactions[signature], nil
}

// GetSignaturesForAddress pages through the stored signatures newest first.
// Before and Until are exclusive bounds, matching the node.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("getSignaturesForAddress")

	sigs := c.Signatures[address]
	if opts == nil {
		return append([]solana.SignatureInfo(nil), sigs...), nil
	}

	start := 0
	if opts.Before != "" {
		start = len(sigs)
		for i, s := range sigs {
			if s.Signature == opts.Before {
				start = i + 1
				break
			}
		}
	}

	var out []solana.SignatureInfo
	for _, s := range sigs[start:] {
		if opts.Until != "" && s.Signature == opts.Until {
			break
		}
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
		out = append(out, s)
	}
	return out, nil
}

// AddTransaction stores tx and indexes its signature under every account key.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Transactions[tx.Signature] = tx
	if tx.Slot > c.Slot {
		c.Slot = tx.Slot
	}
	if tx.Message == nil {
		return
	}

	var blockTime *int64
	if tx.BlockTime != 0 {
		bt := tx.BlockTime
		blockTime = &bt
	}
	var txErr interface{}
	if tx.Meta != nil {
		txErr = tx.Meta.Err
	}
	info := solana.SignatureInfo{Signature: tx.Signature, Slot: tx.Slot, BlockTime: blockTime, Err: txErr}
	for _, key := range tx.Message.AccountKeys {
		c.Signatures[key] = append([]solana.SignatureInfo{info}, c.Signatures[key]...)
	}
}

// AddSignatures replaces the signatures for an address; sigs must be newest first.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Signatures[address] = sigs
}

// SetAccount stores an account.
func (c *RPCClient) SetAccount(pubkey string, acc *solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[pubkey] = acc
}

var _ solana.RPCClient = (*RPCClient)(nil)
