// Package node runs a single-process localnet: one bank with the token and
// escrow programs installed, the transaction history the RPC surface reads,
// a faucet, and a logs feed for subscribers.
package node

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"solana-escrow-lab/internal/ledger"
	"solana-escrow-lab/internal/observability"
	"solana-escrow-lab/internal/program"
	"solana-escrow-lab/internal/solana"
	"solana-escrow-lab/internal/token"
)

// Defaults.
const (
	DefaultAirdropLimit = 100_000_000_000 // 100 SOL
	DefaultAirdropRPS   = 1.0
	DefaultAirdropBurst = 5
	DefaultHistoryLimit = 1000
)

const (
	faucetLamports   = 1 << 62
	faucetSeedDomain = "solana-escrow-lab:faucet"
)

// Metric labels for transactions without an escrow instruction.
const (
	airdropInstruction    = "Airdrop"
	unknownInstruction    = "Unknown"
	transferInstruction   = "Transfer"
	tokenInstruction      = "Token"
	associatedInstruction = "AssociatedToken"
)

// TxRecord is a committed transaction.
type TxRecord struct {
	Signature   string
	Slot        uint64
	BlockTime   int64 // Unix seconds
	Logs        []string
	AccountKeys []string
}

// Node is a localnet validator.
type Node struct {
	bank   *ledger.Bank
	faucet *solana.Keypair
	nonce  atomic.Uint64

	submitMu  sync.Mutex
	mu        sync.RWMutex
	txs       map[string]*TxRecord
	history   map[solana.PublicKey][]string // oldest first
	pubsub    *PubSub
	limiter   *airdropLimiter
	maxDrop   uint64
	interval  time.Duration
	now       func() time.Time
	metrics   *observability.Metrics
	logger    zerolog.Logger
	bankOpts  []ledger.Option
	rateRPS   float64
	rateBurst int
}

// Option configures a Node.
type Option func(*Node)

// WithAirdropLimit caps lamports per airdrop request.
func WithAirdropLimit(lamports uint64) Option {
	return func(n *Node) { n.maxDrop = lamports }
}

// WithAirdropRate sets the per-recipient token bucket. Zero disables rate limiting.
func WithAirdropRate(rps float64, burst int) Option {
	return func(n *Node) {
		n.rateRPS = rps
		n.rateBurst = burst
	}
}

// WithSlotInterval advances the slot on a timer while Run is active.
func WithSlotInterval(d time.Duration) Option {
	return func(n *Node) { n.interval = d }
}

// WithClock sets the wall clock used by the bank and the limiter.
func WithClock(now func() time.Time) Option {
	return func(n *Node) { n.now = now }
}

// WithMetrics records transaction and subscription metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(n *Node) { n.metrics = m }
}

// WithLogger sets the node logger.
func WithLogger(l zerolog.Logger) Option {
	return func(n *Node) { n.logger = l }
}

// WithBankOptions passes options through to the bank.
func WithBankOptions(opts ...ledger.Option) Option {
	return func(n *Node) { n.bankOpts = append(n.bankOpts, opts...) }
}

// New creates a node with the system, token, associated token and escrow
// programs installed and a funded faucet.
func New(opts ...Option) (*Node, error) {
	n := &Node{
		txs:       make(map[string]*TxRecord),
		history:   make(map[solana.PublicKey][]string),
		maxDrop:   DefaultAirdropLimit,
		now:       time.Now,
		logger:    zerolog.Nop(),
		rateRPS:   DefaultAirdropRPS,
		rateBurst: DefaultAirdropBurst,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With().Str("component", "node").Logger()
	n.limiter = newAirdropLimiter(n.rateRPS, n.rateBurst)
	n.pubsub = NewPubSub(n.metrics, n.logger)

	bankOpts := append([]ledger.Option{
		ledger.WithClock(n.now),
		ledger.WithLogger(n.logger),
	}, n.bankOpts...)
	n.bank = ledger.NewBank(bankOpts...)
	token.Install(n.bank)
	program.Install(n.bank)

	seed := sha256.Sum256([]byte(faucetSeedDomain))
	faucet, err := solana.KeypairFromSeed(seed[:])
	if err != nil {
		return nil, fmt.Errorf("faucet keypair: %w", err)
	}
	n.faucet = faucet
	if err := n.bank.Airdrop(faucet.PublicKey(), faucetLamports); err != nil {
		return nil, fmt.Errorf("fund faucet: %w", err)
	}

	n.logger.Info().
		Str("program", program.ProgramID.String()).
		Str("faucet", faucet.PublicKey().String()).
		Uint64("airdrop_limit", n.maxDrop).
		Msg("node ready")
	return n, nil
}

// Bank exposes the underlying bank.
func (n *Node) Bank() *ledger.Bank {
	return n.bank
}

// PubSub exposes the logs feed.
func (n *Node) PubSub() *PubSub {
	return n.pubsub
}

// Run advances the slot every slot interval until ctx is done.
// Without an interval it only waits for ctx.
func (n *Node) Run(ctx context.Context) error {
	if n.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n.metrics.SetSlot(n.bank.Tick())
		}
	}
}

// SendTransaction decodes, verifies and executes an encoded signed transaction.
// A failed transaction returns *TxFailedError and leaves no record.
func (n *Node) SendTransaction(raw []byte) (string, error) {
	stx, err := ledger.DecodeTransaction(raw)
	if err != nil {
		return "", err
	}
	return n.submit(stx, "")
}

// Airdrop transfers lamports from the faucet to pk.
func (n *Node) Airdrop(pk solana.PublicKey, lamports uint64) (string, error) {
	switch {
	case lamports == 0:
		return "", ErrInvalidAirdrop
	case lamports > n.maxDrop:
		return "", fmt.Errorf("%w: %d > %d", ErrAirdropLimit, lamports, n.maxDrop)
	case !n.limiter.Allow(pk.String(), n.now()):
		return "", ErrAirdropRateLimited
	}

	msg := ledger.Message{
		Nonce:        n.nonce.Add(1),
		Signers:      []solana.PublicKey{n.faucet.PublicKey()},
		Instructions: []ledger.Instruction{ledger.TransferInstruction(n.faucet.PublicKey(), pk, lamports)},
	}
	stx, err := ledger.SignTransaction(msg, n.faucet.PrivateKey())
	if err != nil {
		return "", fmt.Errorf("sign airdrop: %w", err)
	}
	return n.submit(stx, airdropInstruction)
}

func (n *Node) submit(stx *ledger.SignedTransaction, label string) (string, error) {
	tx, err := stx.Verify()
	if err != nil {
		return "", err
	}
	sig := stx.Signature()
	if label == "" {
		label = instructionLabel(tx)
	}

	n.submitMu.Lock()
	defer n.submitMu.Unlock()

	n.mu.RLock()
	_, seen := n.txs[sig]
	n.mu.RUnlock()
	if seen {
		return sig, ErrDuplicateTransaction
	}

	start := time.Now()
	receipt, err := n.bank.Process(tx)
	elapsed := time.Since(start).Seconds()
	n.metrics.SetSlot(n.bank.Slot())

	if err != nil {
		code := -1
		var pe program.ErrorCode
		if errors.As(err, &pe) {
			code = int(pe)
		}
		n.metrics.RecordTransaction(label, false, code, elapsed)
		n.logger.Debug().Str("signature", sig).Str("instruction", label).Err(err).Msg("transaction rejected")
		return sig, &TxFailedError{Signature: sig, Receipt: receipt, Err: err}
	}
	n.metrics.RecordTransaction(label, true, -1, elapsed)

	keys := accountKeys(tx)
	rec := &TxRecord{
		Signature:   sig,
		Slot:        receipt.Slot,
		BlockTime:   receipt.Timestamp,
		Logs:        receipt.Logs,
		AccountKeys: make([]string, len(keys)),
	}
	for i, k := range keys {
		rec.AccountKeys[i] = k.String()
	}

	n.mu.Lock()
	n.txs[sig] = rec
	for _, k := range keys {
		n.history[k] = append(n.history[k], sig)
	}
	n.mu.Unlock()

	n.logger.Info().Str("signature", sig).Str("instruction", label).Uint64("slot", rec.Slot).Msg("transaction committed")
	n.pubsub.Publish(solana.LogNotification{
		Signature: sig,
		Slot:      int64(rec.Slot),
		Logs:      rec.Logs,
	}, keys)
	return sig, nil
}

// instructionLabel names a transaction by its first escrow instruction,
// falling back to the first instruction's program.
func instructionLabel(tx *ledger.Transaction) string {
	for _, ix := range tx.Instructions {
		if ix.ProgramID != program.ProgramID {
			continue
		}
		decoded, err := program.Decode(ix.Data)
		if err != nil {
			return unknownInstruction
		}
		return program.Name(decoded)
	}
	if len(tx.Instructions) == 0 {
		return unknownInstruction
	}
	switch tx.Instructions[0].ProgramID {
	case solana.SystemProgramID:
		return transferInstruction
	case solana.TokenProgramID:
		return tokenInstruction
	case solana.AssociatedTokenProgramID:
		return associatedInstruction
	}
	return unknownInstruction
}

// accountKeys lists signers, then every program and account in instruction order, deduplicated.
func accountKeys(tx *ledger.Transaction) []solana.PublicKey {
	seen := make(map[solana.PublicKey]struct{})
	var keys []solana.PublicKey
	add := func(k solana.PublicKey) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for _, s := range tx.Signers {
		add(s)
	}
	for _, ix := range tx.Instructions {
		add(ix.ProgramID)
		for _, m := range ix.Accounts {
			add(m.PublicKey)
		}
	}
	return keys
}

// Slot returns the last processed slot.
func (n *Node) Slot() uint64 {
	return n.bank.Slot()
}

// Account returns a copy of the account at pk.
func (n *Node) Account(pk solana.PublicKey) (*ledger.Account, bool) {
	return n.bank.GetAccount(pk)
}

// Balance returns the lamports at pk, zero when the account does not exist.
func (n *Node) Balance(pk solana.PublicKey) uint64 {
	if acc, ok := n.bank.GetAccount(pk); ok {
		return acc.Lamports
	}
	return 0
}

// TokenBalance returns the raw amount and mint decimals of a token account.
func (n *Node) TokenBalance(pk solana.PublicKey) (uint64, uint8, error) {
	acc, ok := n.bank.GetAccount(pk)
	if !ok || acc.Owner != solana.TokenProgramID {
		return 0, 0, fmt.Errorf("%w: %s", ErrNotTokenAccount, pk)
	}
	ta, err := token.UnpackAccount(acc.Data)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s: %v", ErrNotTokenAccount, pk, err)
	}
	mintAcc, ok := n.bank.GetAccount(ta.Mint)
	if !ok {
		return 0, 0, fmt.Errorf("mint %s of %s: %w", ta.Mint, pk, ledger.ErrInvalidAccountData)
	}
	mint, err := token.UnpackMint(mintAcc.Data)
	if err != nil {
		return 0, 0, fmt.Errorf("mint %s of %s: %w", ta.Mint, pk, err)
	}
	return ta.Amount, mint.Decimals, nil
}

// Transaction returns a committed transaction by signature.
func (n *Node) Transaction(sig string) (*TxRecord, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	rec, ok := n.txs[sig]
	return rec, ok
}

// SignaturesForAddress returns transactions touching pk, newest first.
// Before and until are exclusive; limit is clamped to DefaultHistoryLimit.
func (n *Node) SignaturesForAddress(pk solana.PublicKey, before, until string, limit int) ([]*TxRecord, error) {
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	sigs := n.history[pk]
	end := len(sigs)
	if before != "" {
		end = -1
		for i, s := range sigs {
			if s == before {
				end = i
				break
			}
		}
		if end < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSignature, before)
		}
	}

	var out []*TxRecord
	for i := end - 1; i >= 0 && len(out) < limit; i-- {
		if sigs[i] == until {
			break
		}
		out = append(out, n.txs[sigs[i]])
	}
	return out, nil
}
