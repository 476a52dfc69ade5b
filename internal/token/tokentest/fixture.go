// Package tokentest builds ledger fixtures with mints and funded token
// accounts for tests.
package tokentest

import (
	"crypto/ed25519"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"solana-escrow-lab/internal/ledger"
	"solana-escrow-lab/internal/solana"
	"solana-escrow-lab/internal/token"
)

// PayerLamports is the opening balance of the fixture payer.
const PayerLamports = 1_000_000_000_000

// Fixture wraps a bank with the token programs installed.
type Fixture struct {
	t     testing.TB
	Bank  *ledger.Bank
	Payer solana.PublicKey
	next  uint64
}

// New creates a fixture on a fresh bank with a fixed clock.
func New(t testing.TB, opts ...ledger.Option) *Fixture {
	t.Helper()
	opts = append([]ledger.Option{ledger.WithClock(func() time.Time { return time.Unix(1_700_000_000, 0) })}, opts...)
	f := &Fixture{t: t, Bank: ledger.NewBank(opts...)}
	token.Install(f.Bank)
	f.Payer = f.NewKey()
	require.NoError(t, f.Bank.Airdrop(f.Payer, PayerLamports))
	return f
}

// NewKey returns a fresh on-curve address.
func (f *Fixture) NewKey() solana.PublicKey {
	f.next++
	seed := make([]byte, ed25519.SeedSize)
	binary.LittleEndian.PutUint64(seed, f.next)
	priv := ed25519.NewKeyFromSeed(seed)
	pk, err := solana.PublicKeyFromBytes(priv.Public().(ed25519.PublicKey))
	require.NoError(f.t, err)
	return pk
}

// NewWallet returns a fresh address funded with lamports.
func (f *Fixture) NewWallet(lamports uint64) solana.PublicKey {
	pk := f.NewKey()
	require.NoError(f.t, f.Bank.Airdrop(pk, lamports))
	return pk
}

// Send processes one transaction.
func (f *Fixture) Send(signers []solana.PublicKey, ixs ...ledger.Instruction) (*ledger.Receipt, error) {
	return f.Bank.Process(&ledger.Transaction{Signers: signers, Instructions: ixs})
}

// MustSend processes one transaction and fails the test on error.
func (f *Fixture) MustSend(signers []solana.PublicKey, ixs ...ledger.Instruction) *ledger.Receipt {
	f.t.Helper()
	r, err := f.Send(signers, ixs...)
	require.NoError(f.t, err, "logs: %v", receiptLogs(r))
	return r
}

func receiptLogs(r *ledger.Receipt) []string {
	if r == nil {
		return nil
	}
	return r.Logs
}

// CreateMint allocates and initializes a mint controlled by authority.
func (f *Fixture) CreateMint(authority solana.PublicKey, decimals uint8) solana.PublicKey {
	f.t.Helper()
	mint := f.NewKey()
	lamports := f.Bank.Rent().MinimumBalance(token.MintLen)
	f.MustSend([]solana.PublicKey{f.Payer, mint},
		ledger.CreateAccountInstruction(f.Payer, mint, lamports, token.MintLen, solana.TokenProgramID),
		token.InitializeMint2(mint, authority, nil, decimals),
	)
	return mint
}

// CreateATA creates the associated token account of wallet for mint.
func (f *Fixture) CreateATA(wallet, mint solana.PublicKey) solana.PublicKey {
	f.t.Helper()
	ix, err := token.CreateAssociated(f.Payer, wallet, mint)
	require.NoError(f.t, err)
	f.MustSend([]solana.PublicKey{f.Payer}, ix)
	return ix.Accounts[1].PublicKey
}

// ATA derives the associated token account address without creating it.
func (f *Fixture) ATA(wallet, mint solana.PublicKey) solana.PublicKey {
	f.t.Helper()
	ata, _, err := token.FindAssociatedAddress(wallet, mint)
	require.NoError(f.t, err)
	return ata
}

// MintTo mints amount into dst.
func (f *Fixture) MintTo(mint, authority, dst solana.PublicKey, amount uint64) {
	f.t.Helper()
	m := f.Mint(mint)
	f.MustSend([]solana.PublicKey{authority},
		token.MintToChecked(mint, dst, authority, amount, m.Decimals),
	)
}

// Fund creates wallet's ATA for mint if needed and mints amount into it.
func (f *Fixture) Fund(wallet, mint, authority solana.PublicKey, amount uint64) solana.PublicKey {
	f.t.Helper()
	ata := f.ATA(wallet, mint)
	if !f.Exists(ata) {
		f.CreateATA(wallet, mint)
	}
	f.MintTo(mint, authority, ata, amount)
	return ata
}

// Mint decodes a committed mint.
func (f *Fixture) Mint(pk solana.PublicKey) *token.Mint {
	f.t.Helper()
	a, ok := f.Bank.GetAccount(pk)
	require.True(f.t, ok, "mint %s missing", pk)
	m, err := token.UnpackMint(a.Data)
	require.NoError(f.t, err)
	return m
}

// TokenAccount decodes a committed token account.
func (f *Fixture) TokenAccount(pk solana.PublicKey) *token.Account {
	f.t.Helper()
	a, ok := f.Bank.GetAccount(pk)
	require.True(f.t, ok, "token account %s missing", pk)
	ta, err := token.UnpackAccount(a.Data)
	require.NoError(f.t, err)
	return ta
}

// Balance returns the token amount held by pk, zero if it does not exist.
func (f *Fixture) Balance(pk solana.PublicKey) uint64 {
	f.t.Helper()
	if !f.Exists(pk) {
		return 0
	}
	return f.TokenAccount(pk).Amount
}

// Lamports returns the native balance of pk.
func (f *Fixture) Lamports(pk solana.PublicKey) uint64 {
	a, ok := f.Bank.GetAccount(pk)
	if !ok {
		return 0
	}
	return a.Lamports
}

// Exists reports whether pk holds a committed account.
func (f *Fixture) Exists(pk solana.PublicKey) bool {
	_, ok := f.Bank.GetAccount(pk)
	return ok
}
