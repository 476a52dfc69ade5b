package node_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-escrow-lab/internal/node"
	"solana-escrow-lab/internal/node/nodetest"
	"solana-escrow-lab/internal/observability"
	"solana-escrow-lab/internal/program"
	"solana-escrow-lab/internal/solana"
	"solana-escrow-lab/internal/token"
)

func TestServer_EscrowRoundTrip(t *testing.T) {
	ln := nodetest.Start(t)
	ctx := context.Background()
	m := ln.NewMarket(6, 9, 1_000_000, 5_000_000_000)

	_, err := ln.Client.Make(ctx, m.Maker, m.MintX, m.MintY, m.Owner.PublicKey(), program.EscrowMake{
		DecimalX: 6, AmountX: 400_000, DecimalY: 9, AmountY: 2_000_000_000, ID: 7,
	})
	require.NoError(t, err)

	rec, err := ln.Client.Escrow(ctx, m.Maker.PublicKey(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(400_000), rec.AmountX)

	takeSig, err := ln.Client.Take(ctx, m.Taker, m.Maker.PublicKey(), m.MintX, m.MintY, m.Owner.PublicKey(), program.EscrowTake{
		DecimalX: 6, AmountX: 400_000, DecimalY: 9, AmountY: 2_000_000_000, ID: 7,
	})
	require.NoError(t, err)

	takerX, _, err := token.FindAssociatedAddress(m.Taker.PublicKey(), m.MintX)
	require.NoError(t, err)
	amount, err := ln.RPC.GetTokenAccountBalance(ctx, takerX.String())
	require.NoError(t, err)
	assert.Equal(t, "400000", amount.Amount)
	assert.Equal(t, uint8(6), amount.Decimals)
	assert.Equal(t, "0.4", amount.UIAmountString)

	_, err = ln.Client.Withdraw(ctx, m.Maker, m.MintY, 7)
	require.NoError(t, err)
	makerY, _, err := token.FindAssociatedAddress(m.Maker.PublicKey(), m.MintY)
	require.NoError(t, err)
	amount, err = ln.RPC.GetTokenAccountBalance(ctx, makerY.String())
	require.NoError(t, err)
	assert.Equal(t, "2000000000", amount.Amount)

	tx, err := ln.RPC.GetTransaction(ctx, takeSig)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, takeSig, tx.Signature)
	joined := strings.Join(tx.Meta.LogMessages, "\n")
	assert.Contains(t, joined, "Program log: Instruction: EscrowTake")
	assert.Contains(t, joined, "escrow_take escrow=")

	sigs, err := ln.RPC.GetSignaturesForAddress(ctx, program.ProgramID.String(), &solana.SignaturesOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.Equal(t, takeSig, sigs[1].Signature)
}

func TestServer_TransactionFailure(t *testing.T) {
	ln := nodetest.Start(t)
	ctx := context.Background()
	m := ln.NewMarket(6, 6, 1_000, 1_000)

	_, err := ln.Client.Make(ctx, m.Maker, m.MintX, m.MintY, m.Owner.PublicKey(), program.EscrowMake{
		DecimalX: 6, AmountX: 100, DecimalY: 6, AmountY: 200, ID: 1,
	})
	require.NoError(t, err)

	_, err = ln.Client.Take(ctx, m.Taker, m.Maker.PublicKey(), m.MintX, m.MintY, m.Owner.PublicKey(), program.EscrowTake{
		DecimalX: 6, AmountX: 100, DecimalY: 6, AmountY: 150, ID: 1,
	})
	var rpcErr *solana.RPCError
	require.True(t, errors.As(err, &rpcErr), "got %v", err)
	assert.Equal(t, solana.CodeTransactionFailed, rpcErr.Code)
	require.NotNil(t, rpcErr.Data)
	require.NotNil(t, rpcErr.Data.ProgramError)
	assert.Equal(t, uint32(program.ErrEscrowAmount), *rpcErr.Data.ProgramError)
	assert.Equal(t, 0, rpcErr.Data.Instruction)
	assert.NotEmpty(t, rpcErr.Data.Logs)

	rec, err := ln.Client.Escrow(ctx, m.Maker.PublicKey(), 1)
	require.NoError(t, err, "failed take leaves the offer open")
	assert.Equal(t, uint64(200), rec.AmountY)
}

func TestServer_AirdropErrors(t *testing.T) {
	ln := nodetest.Start(t, node.WithAirdropLimit(50))
	ctx := context.Background()
	pk := ln.Keypair().PublicKey().String()

	_, err := ln.RPC.RequestAirdrop(ctx, pk, 51)
	var rpcErr *solana.RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, solana.CodeAirdropLimitExceeded, rpcErr.Code)

	_, err = ln.RPC.RequestAirdrop(ctx, "not-base58!", 1)
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, solana.CodeInvalidParams, rpcErr.Code)

	_, err = ln.RPC.RequestAirdrop(ctx, pk, 50)
	require.NoError(t, err)
	bal, err := ln.RPC.GetBalance(ctx, pk)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), bal)
}

func TestServer_AccountInfo(t *testing.T) {
	ln := nodetest.Start(t)
	ctx := context.Background()
	m := ln.NewMarket(2, 3, 10, 10)

	info, err := ln.RPC.GetAccountInfo(ctx, m.MintX.String())
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, solana.TokenProgramID, info.Owner)
	mint, err := token.UnpackMint(info.Data)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), mint.Decimals)

	cfg, err := ln.Client.Config(ctx, m.Owner.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, m.Admin.PublicKey(), cfg.Admin)

	info, err = ln.RPC.GetAccountInfo(ctx, ln.Keypair().PublicKey().String())
	require.NoError(t, err)
	assert.Nil(t, info)

	_, err = ln.RPC.GetTokenAccountBalance(ctx, m.Maker.PublicKey().String())
	var rpcErr *solana.RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, solana.CodeInvalidParams, rpcErr.Code)

	tx, err := ln.RPC.GetTransaction(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func postRaw(t *testing.T, url, body string) solana.RPCResponse {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out solana.RPCResponse
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

func TestServer_ProtocolErrors(t *testing.T) {
	ln := nodetest.Start(t)

	resp := postRaw(t, ln.Server.URL, `{not json`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, solana.CodeParseError, resp.Error.Code)

	resp = postRaw(t, ln.Server.URL, `{"jsonrpc":"1.0","id":3,"method":"getSlot"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, solana.CodeInvalidRequest, resp.Error.Code)

	resp = postRaw(t, ln.Server.URL, `{"jsonrpc":"2.0","id":4,"method":"getBlock"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, solana.CodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, uint64(4), resp.ID)

	resp = postRaw(t, ln.Server.URL, `{"jsonrpc":"2.0","id":5,"method":"getBalance","params":[]}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, solana.CodeInvalidParams, resp.Error.Code)

	resp = postRaw(t, ln.Server.URL, `{"jsonrpc":"2.0","id":6,"method":"getTransaction","params":["x"]}`)
	assert.Nil(t, resp.Error)
	assert.JSONEq(t, "null", string(resp.Result), "missing transactions serialize an explicit null")
}

func TestServer_HealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)
	n, err := node.New(node.WithMetrics(metrics), node.WithAirdropRate(0, 0))
	require.NoError(t, err)
	srv := httptest.NewServer(node.NewServer(n, node.WithServerMetrics(metrics)))
	defer srv.Close()

	rpc := solana.NewHTTPClient(srv.URL, solana.WithMaxRetries(0))
	_, err = rpc.GetSlot(context.Background())
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, bytes.Contains(body, []byte(`test_rpc_requests_total{method="getSlot",status="ok"} 1`)), string(body))
}

func TestServer_LogsSubscription(t *testing.T) {
	ln := nodetest.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ws, err := solana.NewWSClient(ctx, ln.WSURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	ch, err := ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{program.ProgramID.String()}})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return ln.Node.PubSub().Len() == 1 }, time.Second, 10*time.Millisecond)

	// Wallet airdrops do not mention the program and must not be delivered.
	m := ln.NewMarket(0, 0, 10, 10)

	select {
	case n := <-ch:
		joined := strings.Join(n.Logs, "\n")
		assert.Contains(t, joined, "config_init config=")
		assert.Contains(t, joined, "owner="+m.Owner.PublicKey().String())
		assert.Positive(t, n.Slot)
	case <-ctx.Done():
		t.Fatal("no notification for config init")
	}

	require.NoError(t, ws.Close())
	assert.Eventually(t, func() bool { return ln.Node.PubSub().Len() == 0 }, time.Second, 10*time.Millisecond,
		"closing the socket releases its subscriptions")
}
