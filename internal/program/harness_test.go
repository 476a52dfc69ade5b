package program

import (
	"testing"

	"github.com/stretchr/testify/require"

	"solana-escrow-lab/internal/ledger"
	"solana-escrow-lab/internal/solana"
	"solana-escrow-lab/internal/token/tokentest"
)

const walletLamports = 10_000_000_000

type harness struct {
	*tokentest.Fixture
	t        *testing.T
	owner    solana.PublicKey
	admin    solana.PublicKey
	mintAuth solana.PublicKey
	mintX    solana.PublicKey
	mintY    solana.PublicKey
	maker    solana.PublicKey
	taker    solana.PublicKey
}

func label(s string) [32]byte {
	var b [32]byte
	copy(b[:], s)
	return b
}

// newHarness installs the program, creates two mints and an active config.
func newHarness(t *testing.T, decimalX, decimalY uint8) *harness {
	t.Helper()
	f := tokentest.New(t)
	Install(f.Bank)
	h := &harness{Fixture: f, t: t}
	h.owner = f.NewWallet(walletLamports)
	h.admin = f.NewWallet(walletLamports)
	h.mintAuth = f.NewKey()
	h.mintX = f.CreateMint(h.mintAuth, decimalX)
	h.mintY = f.CreateMint(h.mintAuth, decimalY)
	h.maker = f.NewWallet(walletLamports)
	h.taker = f.NewWallet(walletLamports)
	return h
}

func (h *harness) initConfig(args InitConfig, mints [4]solana.PublicKey) (*ledger.Receipt, error) {
	ix, err := NewInitConfig(ProgramID, h.owner, h.owner, h.admin, mints, args)
	require.NoError(h.t, err)
	return h.Send([]solana.PublicKey{h.owner}, ix)
}

func (h *harness) mustInitConfig() {
	h.t.Helper()
	_, err := h.initConfig(InitConfig{Status: StatusActive, Fee: 25, Label: label("desk")}, [4]solana.PublicKey{h.mintX, h.mintY})
	require.NoError(h.t, err)
}

func (h *harness) config() *Config {
	h.t.Helper()
	addr, _, err := ConfigAddress(ProgramID, h.owner)
	require.NoError(h.t, err)
	a, ok := h.Bank.GetAccount(addr)
	require.True(h.t, ok, "config missing")
	cfg, err := DecodeConfig(a.Data)
	require.NoError(h.t, err)
	return cfg
}

func (h *harness) escrowAddr(id uint64) solana.PublicKey {
	addr, _, err := EscrowAddress(ProgramID, h.maker, id)
	require.NoError(h.t, err)
	return addr
}

func (h *harness) escrow(id uint64) *Escrow {
	h.t.Helper()
	a, ok := h.Bank.GetAccount(h.escrowAddr(id))
	require.True(h.t, ok, "escrow %d missing", id)
	rec, err := DecodeEscrow(a.Data)
	require.NoError(h.t, err)
	return rec
}

func (h *harness) make(args EscrowMake) (*ledger.Receipt, error) {
	ix, err := NewEscrowMake(ProgramID, h.maker, h.mintX, h.mintY, h.owner, args)
	require.NoError(h.t, err)
	return h.Send([]solana.PublicKey{h.maker}, ix)
}

func (h *harness) take(args EscrowTake) (*ledger.Receipt, error) {
	ix, err := NewEscrowTake(ProgramID, h.taker, h.maker, h.mintX, h.mintY, h.owner, args)
	require.NoError(h.t, err)
	return h.Send([]solana.PublicKey{h.taker}, ix)
}

func (h *harness) cancel(id uint64) (*ledger.Receipt, error) {
	ix, err := NewEscrowCancel(ProgramID, h.maker, h.mintX, h.mintY, h.owner, id)
	require.NoError(h.t, err)
	return h.Send([]solana.PublicKey{h.maker}, ix)
}

func (h *harness) withdraw(id uint64) (*ledger.Receipt, error) {
	ix, err := NewEscrowWithdraw(ProgramID, h.maker, h.mintY, id)
	require.NoError(h.t, err)
	return h.Send([]solana.PublicKey{h.maker}, ix)
}
