package client_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-escrow-lab/internal/client"
	"solana-escrow-lab/internal/ledger"
	"solana-escrow-lab/internal/node/nodetest"
	"solana-escrow-lab/internal/program"
	"solana-escrow-lab/internal/solana"
)

func TestClient_SendDeduplicatesSigners(t *testing.T) {
	ln := nodetest.Start(t)
	ctx := context.Background()
	payer := ln.Wallet()
	dest := ln.Keypair().PublicKey()

	_, err := ln.Client.Send(ctx, []*solana.Keypair{payer, payer},
		ledger.TransferInstruction(payer.PublicKey(), dest, 1_000_000))
	require.NoError(t, err)

	bal, err := ln.RPC.GetBalance(ctx, dest.String())
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), bal)
}

func TestClient_SendSurfacesProgramErrors(t *testing.T) {
	ln := nodetest.Start(t)
	ctx := context.Background()
	payer := ln.Wallet()

	_, err := ln.Client.Send(ctx, []*solana.Keypair{payer},
		ledger.TransferInstruction(payer.PublicKey(), ln.Keypair().PublicKey(), nodetest.WalletLamports*2))
	require.Error(t, err)

	var rpcErr *solana.RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, solana.CodeTransactionFailed, rpcErr.Code)
	require.NotNil(t, rpcErr.Data)
	assert.Equal(t, 0, rpcErr.Data.Instruction)
}

func TestClient_MintAndTokens(t *testing.T) {
	ln := nodetest.Start(t)
	ctx := context.Background()
	auth := ln.Wallet()

	mint := ln.CreateMint(auth, auth, 6)
	m, err := ln.Client.Mint(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), m.Decimals)

	holder := ln.Keypair().PublicKey()
	ata := ln.Fund(auth, holder, mint, auth, 1_500_000)

	// Creating the associated account again is idempotent.
	again, _, err := ln.Client.CreateATA(ctx, auth, holder, mint)
	require.NoError(t, err)
	assert.Equal(t, ata, again)

	bal, err := ln.RPC.GetTokenAccountBalance(ctx, ata.String())
	require.NoError(t, err)
	assert.Equal(t, "1500000", bal.Amount)
	assert.Equal(t, "1.5", bal.UIAmountString)
}

func TestClient_ConfigLifecycle(t *testing.T) {
	ln := nodetest.Start(t)
	ctx := context.Background()
	m := ln.NewMarket(6, 9, 1_000, 1_000)
	owner := m.Owner.PublicKey()

	cfg, err := ln.Client.Config(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, owner, cfg.ProgOwner)
	assert.Equal(t, m.Admin.PublicKey(), cfg.Admin)
	assert.Equal(t, uint64(25), cfg.Fee)
	assert.Equal(t, program.StatusActive, cfg.Status)
	assert.Equal(t, m.MintX, cfg.Mints[0])
	assert.Equal(t, "desk", string(cfg.Label[:4]))

	// The admin can pause the config.
	var upd program.UpdateConfig
	upd.U8s[0] = program.SelectStatus
	upd.U8s[1] = uint8(program.StatusPaused)
	_, err = ln.Client.UpdateConfig(ctx, m.Admin, owner, m.Admin.PublicKey(), m.Admin.PublicKey(), upd)
	require.NoError(t, err)
	cfg, err = ln.Client.Config(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, program.StatusPaused, cfg.Status)

	// Only the owner may hand the admin role over.
	upd = program.UpdateConfig{}
	upd.U8s[0] = program.SelectAdmin
	_, err = ln.Client.UpdateConfig(ctx, m.Admin, owner, m.Maker.PublicKey(), m.Maker.PublicKey(), upd)
	var rpcErr *solana.RPCError
	require.True(t, errors.As(err, &rpcErr))
	require.NotNil(t, rpcErr.Data.ProgramError)
	assert.Equal(t, uint32(program.ErrOnlyProgramOwner), *rpcErr.Data.ProgramError)

	_, err = ln.Client.ResizeConfig(ctx, m.Owner, owner, program.ConfigLen+64)
	require.NoError(t, err)
	addr, _, err := program.ConfigAddress(program.ProgramID, owner)
	require.NoError(t, err)
	info, err := ln.RPC.GetAccountInfo(ctx, addr.String())
	require.NoError(t, err)
	assert.Len(t, info.Data, program.ConfigLen+64)
	assert.Equal(t, ledger.DefaultRent().MinimumBalance(program.ConfigLen+64), info.Lamports)

	dest := ln.Keypair().PublicKey()
	_, err = ln.Client.CloseConfig(ctx, m.Owner, owner, dest)
	require.NoError(t, err)
	_, err = ln.Client.Config(ctx, owner)
	assert.ErrorIs(t, err, client.ErrAccountNotFound)

	bal, err := ln.RPC.GetBalance(ctx, dest.String())
	require.NoError(t, err)
	assert.Equal(t, info.Lamports, bal)
}

func TestClient_EscrowReader(t *testing.T) {
	ln := nodetest.Start(t)
	ctx := context.Background()
	m := ln.NewMarket(6, 9, 1_000_000_000, 100_000_000_000)
	maker := m.Maker.PublicKey()

	_, err := ln.Client.Escrow(ctx, maker, 7)
	assert.ErrorIs(t, err, client.ErrAccountNotFound)

	_, err = ln.Client.Make(ctx, m.Maker, m.MintX, m.MintY, m.Owner.PublicKey(), program.EscrowMake{
		DecimalX: 6, AmountX: 500_000_000, DecimalY: 9, AmountY: 10_000_000_000, ID: 7,
	})
	require.NoError(t, err)

	rec, err := ln.Client.Escrow(ctx, maker, 7)
	require.NoError(t, err)
	assert.Equal(t, maker, rec.Maker)
	assert.Equal(t, m.MintX, rec.MintX)
	assert.Equal(t, m.MintY, rec.MintY)
	assert.Equal(t, uint64(500_000_000), rec.AmountX)
	assert.Equal(t, uint64(10_000_000_000), rec.AmountY)
	assert.Equal(t, uint64(7), rec.ID)

	_, err = ln.Client.Cancel(ctx, m.Maker, m.MintX, m.MintY, m.Owner.PublicKey(), 7)
	require.NoError(t, err)
	_, err = ln.Client.Escrow(ctx, maker, 7)
	assert.ErrorIs(t, err, client.ErrAccountNotFound)
}

func TestClient_WithProgramID(t *testing.T) {
	ln := nodetest.Start(t)
	other := ln.Keypair().PublicKey()
	c := client.New(ln.RPC, client.WithProgramID(other))

	_, err := c.Config(context.Background(), ln.Keypair().PublicKey())
	assert.ErrorIs(t, err, client.ErrAccountNotFound)
}
