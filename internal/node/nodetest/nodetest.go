// Package nodetest starts an in-process localnet behind httptest for tests.
package nodetest

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"solana-escrow-lab/internal/client"
	"solana-escrow-lab/internal/node"
	"solana-escrow-lab/internal/program"
	"solana-escrow-lab/internal/solana"
)

// WalletLamports funds wallets created by Wallet.
const WalletLamports = 10_000_000_000

var seedCounter atomic.Uint64

// Localnet is a node served over HTTP with a client pointed at it.
type Localnet struct {
	t      testing.TB
	Node   *node.Node
	Server *httptest.Server
	RPC    *solana.HTTPClient
	Client *client.Client
	WSURL  string
}

// Start creates a node and serves it until the test ends.
func Start(t testing.TB, opts ...node.Option) *Localnet {
	t.Helper()
	opts = append([]node.Option{
		node.WithClock(func() time.Time { return time.Unix(1_700_000_000, 0) }),
		node.WithAirdropRate(0, 0),
	}, opts...)
	n, err := node.New(opts...)
	require.NoError(t, err)

	srv := httptest.NewServer(node.NewServer(n))
	t.Cleanup(srv.Close)

	rpc := solana.NewHTTPClient(srv.URL, solana.WithMaxRetries(0))
	return &Localnet{
		t:      t,
		Node:   n,
		Server: srv,
		RPC:    rpc,
		Client: client.New(rpc),
		WSURL:  "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

// Keypair returns a fresh deterministic keypair.
func (l *Localnet) Keypair() *solana.Keypair {
	seed := make([]byte, ed25519.SeedSize)
	binary.LittleEndian.PutUint64(seed, seedCounter.Add(1))
	seed[31] = 0xAB
	kp, err := solana.KeypairFromSeed(seed)
	require.NoError(l.t, err)
	return kp
}

// Wallet returns a keypair funded through the faucet.
func (l *Localnet) Wallet() *solana.Keypair {
	l.t.Helper()
	kp := l.Keypair()
	_, err := l.RPC.RequestAirdrop(context.Background(), kp.PublicKey().String(), WalletLamports)
	require.NoError(l.t, err)
	return kp
}

// CreateMint creates a mint controlled by authority.
func (l *Localnet) CreateMint(payer, authority *solana.Keypair, decimals uint8) solana.PublicKey {
	l.t.Helper()
	mint := l.Keypair()
	_, err := l.Client.CreateMint(context.Background(), payer, mint, authority.PublicKey(), decimals)
	require.NoError(l.t, err)
	return mint.PublicKey()
}

// Fund creates the ATA of wallet for mint and mints amount into it.
func (l *Localnet) Fund(payer *solana.Keypair, wallet, mint solana.PublicKey, authority *solana.Keypair, amount uint64) solana.PublicKey {
	l.t.Helper()
	ctx := context.Background()
	ata, _, err := l.Client.CreateATA(ctx, payer, wallet, mint)
	require.NoError(l.t, err)
	_, err = l.Client.MintTo(ctx, authority, mint, ata, amount)
	require.NoError(l.t, err)
	return ata
}

// Market is an active config with two allowed mints and funded parties.
type Market struct {
	Owner, Admin, MintAuth, Maker, Taker *solana.Keypair
	MintX, MintY                         solana.PublicKey
}

// NewMarket sets up a Market: the maker holds supplyX of X, the taker supplyY of Y.
func (l *Localnet) NewMarket(decimalX, decimalY uint8, supplyX, supplyY uint64) *Market {
	l.t.Helper()
	m := &Market{
		Owner:    l.Wallet(),
		Admin:    l.Wallet(),
		MintAuth: l.Wallet(),
		Maker:    l.Wallet(),
		Taker:    l.Wallet(),
	}
	m.MintX = l.CreateMint(m.MintAuth, m.MintAuth, decimalX)
	m.MintY = l.CreateMint(m.MintAuth, m.MintAuth, decimalY)
	l.Fund(m.MintAuth, m.Maker.PublicKey(), m.MintX, m.MintAuth, supplyX)
	l.Fund(m.MintAuth, m.Taker.PublicKey(), m.MintY, m.MintAuth, supplyY)

	var lbl [32]byte
	copy(lbl[:], "desk")
	_, err := l.Client.InitConfig(context.Background(), m.Owner, m.Admin.PublicKey(),
		[4]solana.PublicKey{m.MintX, m.MintY},
		program.InitConfig{Status: program.StatusActive, Fee: 25, Label: lbl})
	require.NoError(l.t, err)
	return m
}
