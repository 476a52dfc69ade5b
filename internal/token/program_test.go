package token_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-escrow-lab/internal/ledger"
	"solana-escrow-lab/internal/solana"
	"solana-escrow-lab/internal/token"
	"solana-escrow-lab/internal/token/tokentest"
)

func TestLayout_Offsets(t *testing.T) {
	authority := solana.PublicKey{1}
	m := &token.Mint{MintAuthority: &authority, Supply: 42, Decimals: 6, IsInitialized: true}
	buf := make([]byte, token.MintLen)
	m.Pack(buf)

	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(buf[0:4]))
	assert.Equal(t, byte(1), buf[4])
	assert.Equal(t, uint64(42), binary.LittleEndian.Uint64(buf[36:44]))
	assert.Equal(t, byte(6), buf[44])
	assert.Equal(t, byte(1), buf[45])
	assert.Equal(t, make([]byte, 36), buf[46:82])

	acct := &token.Account{Mint: solana.PublicKey{2}, Owner: solana.PublicKey{3}, Amount: 500, State: token.StateInitialized}
	buf = make([]byte, token.AccountLen)
	acct.Pack(buf)
	assert.Equal(t, byte(2), buf[0])
	assert.Equal(t, byte(3), buf[32])
	assert.Equal(t, uint64(500), binary.LittleEndian.Uint64(buf[64:72]))
	assert.Equal(t, byte(1), buf[108])

	_, err := token.UnpackAccount(buf[:100])
	assert.ErrorIs(t, err, ledger.ErrInvalidAccountData)
}

func TestTransferChecked(t *testing.T) {
	f := tokentest.New(t)
	authority := f.NewKey()
	mint := f.CreateMint(authority, 6)
	alice := f.NewWallet(1_000_000_000)
	bob := f.NewWallet(1_000_000_000)
	aliceATA := f.Fund(alice, mint, authority, 1_000)
	bobATA := f.CreateATA(bob, mint)

	f.MustSend([]solana.PublicKey{alice}, token.TransferChecked(aliceATA, mint, bobATA, alice, 300, 6))
	assert.Equal(t, uint64(700), f.Balance(aliceATA))
	assert.Equal(t, uint64(300), f.Balance(bobATA))
	assert.Equal(t, uint64(1_000), f.Mint(mint).Supply)

	tests := []struct {
		name     string
		signers  []solana.PublicKey
		ix       ledger.Instruction
		expected error
	}{
		{"decimals mismatch", []solana.PublicKey{alice}, token.TransferChecked(aliceATA, mint, bobATA, alice, 1, 9), token.ErrMintDecimalsMismatch},
		{"insufficient funds", []solana.PublicKey{alice}, token.TransferChecked(aliceATA, mint, bobATA, alice, 701, 6), token.ErrInsufficientFunds},
		{"wrong authority", []solana.PublicKey{bob}, token.TransferChecked(aliceATA, mint, bobATA, bob, 1, 6), token.ErrOwnerMismatch},
		{"missing signature", nil, token.TransferChecked(aliceATA, mint, bobATA, alice, 1, 6), ledger.ErrMissingRequiredSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Send(tt.signers, tt.ix)
			assert.ErrorIs(t, err, tt.expected)
			assert.Equal(t, uint64(700), f.Balance(aliceATA))
			assert.Equal(t, uint64(300), f.Balance(bobATA))
		})
	}
}

func TestTransferChecked_MintMismatch(t *testing.T) {
	f := tokentest.New(t)
	authority := f.NewKey()
	mintA := f.CreateMint(authority, 6)
	mintB := f.CreateMint(authority, 6)
	alice := f.NewWallet(1_000_000_000)
	aliceA := f.Fund(alice, mintA, authority, 10)
	aliceB := f.CreateATA(alice, mintB)

	_, err := f.Send([]solana.PublicKey{alice}, token.TransferChecked(aliceA, mintA, aliceB, alice, 1, 6))
	assert.ErrorIs(t, err, token.ErrMintMismatch)
}

func TestMintToChecked_Authority(t *testing.T) {
	f := tokentest.New(t)
	authority := f.NewKey()
	mint := f.CreateMint(authority, 9)
	wallet := f.NewWallet(1_000_000_000)
	ata := f.CreateATA(wallet, mint)

	_, err := f.Send([]solana.PublicKey{wallet}, token.MintToChecked(mint, ata, wallet, 5, 9))
	assert.ErrorIs(t, err, token.ErrOwnerMismatch)

	f.MintTo(mint, authority, ata, 5)
	assert.Equal(t, uint64(5), f.Balance(ata))
	assert.Equal(t, uint64(5), f.Mint(mint).Supply)
}

func TestCloseAccount(t *testing.T) {
	f := tokentest.New(t)
	authority := f.NewKey()
	mint := f.CreateMint(authority, 6)
	alice := f.NewWallet(1_000_000_000)
	ata := f.Fund(alice, mint, authority, 1)
	rent := f.Lamports(ata)

	_, err := f.Send([]solana.PublicKey{alice}, token.CloseAccount(ata, alice, alice))
	require.ErrorIs(t, err, token.ErrNonNativeHasBalance)

	burnTo := f.ATA(f.Payer, mint)
	f.CreateATA(f.Payer, mint)
	f.MustSend([]solana.PublicKey{alice}, token.TransferChecked(ata, mint, burnTo, alice, 1, 6))

	before := f.Lamports(alice)
	f.MustSend([]solana.PublicKey{alice}, token.CloseAccount(ata, alice, alice))
	assert.False(t, f.Exists(ata))
	assert.Equal(t, before+rent, f.Lamports(alice))
}

func TestAssociated_CreateAndIdempotent(t *testing.T) {
	f := tokentest.New(t)
	authority := f.NewKey()
	mint := f.CreateMint(authority, 6)
	wallet := f.NewKey()

	ata := f.CreateATA(wallet, mint)
	acct := f.TokenAccount(ata)
	assert.Equal(t, wallet, acct.Owner)
	assert.Equal(t, mint, acct.Mint)
	assert.Equal(t, f.Bank.Rent().MinimumBalance(token.AccountLen), f.Lamports(ata))

	again, err := token.CreateAssociated(f.Payer, wallet, mint)
	require.NoError(t, err)
	_, err = f.Send([]solana.PublicKey{f.Payer}, again)
	assert.ErrorIs(t, err, ledger.ErrAccountAlreadyInUse)

	idem, err := token.CreateAssociatedIdempotent(f.Payer, wallet, mint)
	require.NoError(t, err)
	f.MustSend([]solana.PublicKey{f.Payer}, idem)
}

func TestAssociated_WrongAddress(t *testing.T) {
	f := tokentest.New(t)
	authority := f.NewKey()
	mint := f.CreateMint(authority, 6)
	wallet := f.NewKey()

	ix, err := token.CreateAssociated(f.Payer, wallet, mint)
	require.NoError(t, err)
	ix.Accounts[1].PublicKey = f.NewKey()

	_, err = f.Send([]solana.PublicKey{f.Payer}, ix)
	assert.ErrorIs(t, err, solana.ErrInvalidSeeds)
}

func TestFindAssociatedAddress_Deterministic(t *testing.T) {
	wallet := solana.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	mint := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	a1, b1, err := token.FindAssociatedAddress(wallet, mint)
	require.NoError(t, err)
	a2, b2, err := token.FindAssociatedAddress(wallet, mint)
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
	assert.False(t, solana.IsOnCurve(a1[:]))
}
