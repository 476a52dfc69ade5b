package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-escrow-lab/internal/solana"
)

// Bank holds committed account state and executes transactions one at a time.
type Bank struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey]*Account
	programs map[solana.PublicKey]Program
	rent     Rent
	now      func() time.Time
	slot     uint64
	logger   zerolog.Logger
}

// Option configures a Bank.
type Option func(*Bank)

// WithRent overrides the rent model.
func WithRent(r Rent) Option {
	return func(b *Bank) {
		b.rent = r
	}
}

// WithClock overrides the wall clock used for the clock sysvar.
func WithClock(now func() time.Time) Option {
	return func(b *Bank) {
		b.now = now
	}
}

// WithLogger sets the host logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Bank) {
		b.logger = l
	}
}

// NewBank creates a bank with the system program registered.
func NewBank(opts ...Option) *Bank {
	b := &Bank{
		accounts: make(map[solana.PublicKey]*Account),
		programs: make(map[solana.PublicKey]Program),
		rent:     DefaultRent(),
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.RegisterProgram(solana.SystemProgramID, SystemProgram{})
	return b
}

// RegisterProgram installs an executable at id.
func (b *Bank) RegisterProgram(id solana.PublicKey, p Program) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.programs[id] = p
	b.accounts[id] = &Account{Lamports: 1, Owner: NativeLoaderID, Executable: true}
}

// Rent returns the rent model.
func (b *Bank) Rent() Rent {
	return b.rent
}

// Slot returns the last processed slot.
func (b *Bank) Slot() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slot
}

// Tick advances the slot without a transaction.
func (b *Bank) Tick() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slot++
	return b.slot
}

// GetAccount returns a copy of the committed account.
func (b *Bank) GetAccount(pk solana.PublicKey) (*Account, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	a, ok := b.accounts[pk]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// SetAccount overwrites committed state. Intended for genesis and fixtures.
func (b *Bank) SetAccount(pk solana.PublicKey, a *Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[pk] = a.Clone()
}

// Airdrop credits lamports to a system-owned account, creating it if needed.
func (b *Bank) Airdrop(pk solana.PublicKey, lamports uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	a, ok := b.accounts[pk]
	if !ok {
		a = &Account{Owner: solana.SystemProgramID}
		b.accounts[pk] = a
	}
	if a.Owner != solana.SystemProgramID {
		return fmt.Errorf("airdrop to %s: %w", pk, ErrInvalidAccountOwner)
	}
	v := &AccountView{key: pk, account: a}
	return v.AddLamports(lamports)
}

// Process executes tx atomically. On error no state changes are committed
// and the slot stays put; the receipt still carries the logs produced up to
// the failure and the slot the transaction would have landed in.
func (b *Bank) Process(tx *Transaction) (*Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	slot := b.slot + 1
	now := b.now()
	receipt := &Receipt{Slot: slot, Timestamp: now.Unix()}
	if tx == nil || len(tx.Instructions) == 0 {
		receipt.Err = ErrEmptyTransaction
		return receipt, ErrEmptyTransaction
	}

	state := &txState{
		bank:     b,
		accounts: make(map[solana.PublicKey]*Account),
		signers:  make(map[solana.PublicKey]bool, len(tx.Signers)),
		clock:    clockAt(slot, now),
	}
	for _, s := range tx.Signers {
		state.signers[s] = true
	}

	for i, ix := range tx.Instructions {
		if err := state.executeTop(ix); err != nil {
			txErr := &TransactionError{Index: i, Err: err}
			receipt.Logs = state.logs
			receipt.Err = txErr
			b.logger.Debug().
				Uint64("slot", slot).
				Int("instruction", i).
				Err(err).
				Msg("transaction failed")
			return receipt, txErr
		}
	}

	state.commit()
	b.slot = slot
	receipt.Logs = state.logs
	b.logger.Debug().
		Uint64("slot", b.slot).
		Int("instructions", len(tx.Instructions)).
		Int("accounts", len(state.accounts)).
		Msg("transaction committed")
	return receipt, nil
}

// txState is the working set of one transaction.
type txState struct {
	bank     *Bank
	accounts map[solana.PublicKey]*Account
	signers  map[solana.PublicKey]bool
	logs     []string
	clock    Clock
	// origLen holds each account's data length as the current top-level
	// instruction found it. Callee returns do not reset it.
	origLen map[solana.PublicKey]int
}

func (s *txState) load(pk solana.PublicKey) *Account {
	if a, ok := s.accounts[pk]; ok {
		return a
	}
	if a, ok := s.bank.accounts[pk]; ok {
		c := a.Clone()
		s.accounts[pk] = c
		return c
	}
	a := &Account{Owner: solana.SystemProgramID}
	s.accounts[pk] = a
	return a
}

// commit publishes the working set. Zero-balance slots are released.
func (s *txState) commit() {
	keys := make([]solana.PublicKey, 0, len(s.accounts))
	for pk := range s.accounts {
		keys = append(keys, pk)
	}
	sort.Slice(keys, func(i, j int) bool {
		return string(keys[i][:]) < string(keys[j][:])
	})
	for _, pk := range keys {
		a := s.accounts[pk]
		if a.Lamports == 0 && !a.Executable {
			delete(s.bank.accounts, pk)
			continue
		}
		s.bank.accounts[pk] = a
	}
}

func (s *txState) logf(format string, args ...any) {
	s.logs = append(s.logs, fmt.Sprintf(format, args...))
}

func (s *txState) executeTop(ix Instruction) error {
	s.origLen = make(map[solana.PublicKey]int, len(ix.Accounts))
	views := make([]*AccountView, len(ix.Accounts))
	for i, m := range ix.Accounts {
		views[i] = &AccountView{
			key:      m.PublicKey,
			signer:   m.IsSigner && s.signers[m.PublicKey],
			writable: m.IsWritable,
			account:  s.load(m.PublicKey),
		}
		if _, ok := s.origLen[m.PublicKey]; !ok {
			s.origLen[m.PublicKey] = len(views[i].account.Data)
		}
	}
	return s.run(ix.ProgramID, views, ix.Data, 1)
}

func (s *txState) run(programID solana.PublicKey, views []*AccountView, data []byte, depth int) error {
	program, ok := s.bank.programs[programID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, programID)
	}
	s.logf("Program %s invoke [%d]", programID, depth)

	ctx := &InvokeContext{
		state:     s,
		programID: programID,
		depth:     depth,
		views:     views,
	}
	ctx.pre = takeSnapshot(views)

	if err := program.Process(ctx, views, data); err != nil {
		s.logf("Program %s failed: %v", programID, err)
		return err
	}
	if err := ctx.verify(); err != nil {
		s.logf("Program %s failed: %v", programID, err)
		return err
	}
	s.logf("Program %s success", programID)
	return nil
}
