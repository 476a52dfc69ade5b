// Package client builds, signs and submits settlement program transactions
// against a node's JSON-RPC endpoint.
package client

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"solana-escrow-lab/internal/ledger"
	"solana-escrow-lab/internal/program"
	"solana-escrow-lab/internal/solana"
	"solana-escrow-lab/internal/token"
)

// ErrAccountNotFound is returned when a read targets a missing account.
var ErrAccountNotFound = errors.New("account not found")

// Client submits transactions through an RPC client.
type Client struct {
	rpc       solana.RPCClient
	programID solana.PublicKey
	rent      ledger.Rent
	nonce     atomic.Uint64
	logger    zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithProgramID targets a program deployed at another address.
func WithProgramID(id solana.PublicKey) Option {
	return func(c *Client) { c.programID = id }
}

// WithLogger logs submitted transactions at debug level.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client. The nonce starts at the current time so separate
// processes do not produce identical messages.
func New(rpc solana.RPCClient, opts ...Option) *Client {
	c := &Client{
		rpc:       rpc,
		programID: program.ProgramID,
		rent:      ledger.DefaultRent(),
		logger:    zerolog.Nop(),
	}
	c.nonce.Store(uint64(time.Now().UnixNano()))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RPC returns the underlying RPC client.
func (c *Client) RPC() solana.RPCClient {
	return c.rpc
}

// Send signs ixs with signers and submits them as one transaction.
// Repeated signers sign once.
func (c *Client) Send(ctx context.Context, signers []*solana.Keypair, ixs ...ledger.Instruction) (string, error) {
	msg := ledger.Message{Nonce: c.nonce.Add(1), Instructions: ixs}
	var keys []ed25519.PrivateKey
	seen := make(map[solana.PublicKey]bool, len(signers))
	for _, kp := range signers {
		pk := kp.PublicKey()
		if seen[pk] {
			continue
		}
		seen[pk] = true
		msg.Signers = append(msg.Signers, pk)
		keys = append(keys, kp.PrivateKey())
	}

	stx, err := ledger.SignTransaction(msg, keys...)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	raw, err := stx.Encode()
	if err != nil {
		return "", fmt.Errorf("encode transaction: %w", err)
	}

	sig, err := c.rpc.SendTransaction(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	c.logger.Debug().Str("signature", sig).Int("instructions", len(ixs)).Msg("transaction sent")
	return sig, nil
}

// CreateMint allocates mint and initializes it under authority.
func (c *Client) CreateMint(ctx context.Context, payer, mint *solana.Keypair, authority solana.PublicKey, decimals uint8) (string, error) {
	lamports := c.rent.MinimumBalance(token.MintLen)
	return c.Send(ctx, []*solana.Keypair{payer, mint},
		ledger.CreateAccountInstruction(payer.PublicKey(), mint.PublicKey(), lamports, token.MintLen, solana.TokenProgramID),
		token.InitializeMint2(mint.PublicKey(), authority, nil, decimals),
	)
}

// CreateATA creates the associated token account of wallet for mint if it does not exist.
func (c *Client) CreateATA(ctx context.Context, payer *solana.Keypair, wallet, mint solana.PublicKey) (solana.PublicKey, string, error) {
	ix, err := token.CreateAssociatedIdempotent(payer.PublicKey(), wallet, mint)
	if err != nil {
		return solana.PublicKey{}, "", err
	}
	sig, err := c.Send(ctx, []*solana.Keypair{payer}, ix)
	return ix.Accounts[1].PublicKey, sig, err
}

// MintTo mints amount into dst, reading the mint decimals first.
func (c *Client) MintTo(ctx context.Context, authority *solana.Keypair, mint, dst solana.PublicKey, amount uint64) (string, error) {
	m, err := c.Mint(ctx, mint)
	if err != nil {
		return "", err
	}
	return c.Send(ctx, []*solana.Keypair{authority},
		token.MintToChecked(mint, dst, authority.PublicKey(), amount, m.Decimals))
}

// InitConfig creates the config record and vault of owner.
func (c *Client) InitConfig(ctx context.Context, owner *solana.Keypair, admin solana.PublicKey, mints [4]solana.PublicKey, args program.InitConfig) (string, error) {
	ix, err := program.NewInitConfig(c.programID, owner.PublicKey(), owner.PublicKey(), admin, mints, args)
	if err != nil {
		return "", err
	}
	return c.Send(ctx, []*solana.Keypair{owner}, ix)
}

// UpdateConfig applies one field group to the config of configOwner.
func (c *Client) UpdateConfig(ctx context.Context, authority *solana.Keypair, configOwner, account1, account2 solana.PublicKey, args program.UpdateConfig) (string, error) {
	ix, err := program.NewUpdateConfig(c.programID, authority.PublicKey(), configOwner, account1, account2, args)
	if err != nil {
		return "", err
	}
	return c.Send(ctx, []*solana.Keypair{authority}, ix)
}

// ResizeConfig changes the size of the config of configOwner.
func (c *Client) ResizeConfig(ctx context.Context, authority *solana.Keypair, configOwner solana.PublicKey, newSize uint64) (string, error) {
	ix, err := program.NewResizeConfig(c.programID, authority.PublicKey(), configOwner, newSize)
	if err != nil {
		return "", err
	}
	return c.Send(ctx, []*solana.Keypair{authority}, ix)
}

// CloseConfig closes the config of configOwner, sweeping lamports to dest.
func (c *Client) CloseConfig(ctx context.Context, authority *solana.Keypair, configOwner, dest solana.PublicKey) (string, error) {
	ix, err := program.NewCloseConfig(c.programID, authority.PublicKey(), configOwner, dest)
	if err != nil {
		return "", err
	}
	return c.Send(ctx, []*solana.Keypair{authority}, ix)
}

// Make opens an offer of X for Y under the config of configOwner.
func (c *Client) Make(ctx context.Context, maker *solana.Keypair, mintX, mintY, configOwner solana.PublicKey, args program.EscrowMake) (string, error) {
	ix, err := program.NewEscrowMake(c.programID, maker.PublicKey(), mintX, mintY, configOwner, args)
	if err != nil {
		return "", err
	}
	return c.Send(ctx, []*solana.Keypair{maker}, ix)
}

// Take settles the offer (maker, args.ID).
func (c *Client) Take(ctx context.Context, taker *solana.Keypair, maker, mintX, mintY, configOwner solana.PublicKey, args program.EscrowTake) (string, error) {
	ix, err := program.NewEscrowTake(c.programID, taker.PublicKey(), maker, mintX, mintY, configOwner, args)
	if err != nil {
		return "", err
	}
	return c.Send(ctx, []*solana.Keypair{taker}, ix)
}

// Withdraw sweeps settled Y proceeds of offer id to the maker.
func (c *Client) Withdraw(ctx context.Context, maker *solana.Keypair, mintY solana.PublicKey, id uint64) (string, error) {
	ix, err := program.NewEscrowWithdraw(c.programID, maker.PublicKey(), mintY, id)
	if err != nil {
		return "", err
	}
	return c.Send(ctx, []*solana.Keypair{maker}, ix)
}

// Cancel returns the locked X of offer id and tears it down.
func (c *Client) Cancel(ctx context.Context, maker *solana.Keypair, mintX, mintY, configOwner solana.PublicKey, id uint64) (string, error) {
	ix, err := program.NewEscrowCancel(c.programID, maker.PublicKey(), mintX, mintY, configOwner, id)
	if err != nil {
		return "", err
	}
	return c.Send(ctx, []*solana.Keypair{maker}, ix)
}

func (c *Client) accountData(ctx context.Context, pk solana.PublicKey) ([]byte, error) {
	info, err := c.rpc.GetAccountInfo(ctx, pk.String())
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, pk)
	}
	return info.Data, nil
}

// Mint reads and decodes a mint.
func (c *Client) Mint(ctx context.Context, pk solana.PublicKey) (*token.Mint, error) {
	data, err := c.accountData(ctx, pk)
	if err != nil {
		return nil, err
	}
	return token.UnpackMint(data)
}

// Config reads the config record of owner.
func (c *Client) Config(ctx context.Context, owner solana.PublicKey) (*program.Config, error) {
	addr, _, err := program.ConfigAddress(c.programID, owner)
	if err != nil {
		return nil, err
	}
	data, err := c.accountData(ctx, addr)
	if err != nil {
		return nil, err
	}
	return program.DecodeConfig(data)
}

// Escrow reads the escrow record (maker, id).
func (c *Client) Escrow(ctx context.Context, maker solana.PublicKey, id uint64) (*program.Escrow, error) {
	addr, _, err := program.EscrowAddress(c.programID, maker, id)
	if err != nil {
		return nil, err
	}
	data, err := c.accountData(ctx, addr)
	if err != nil {
		return nil, err
	}
	return program.DecodeEscrow(data)
}
