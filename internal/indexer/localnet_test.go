package indexer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-escrow-lab/internal/domain"
	"solana-escrow-lab/internal/indexer"
	"solana-escrow-lab/internal/node/nodetest"
	"solana-escrow-lab/internal/program"
	"solana-escrow-lab/internal/solana"
	"solana-escrow-lab/internal/storage/memory"
)

func TestIndexer_Localnet(t *testing.T) {
	ln := nodetest.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := ln.NewMarket(6, 9, 1_000_000_000, 100_000_000_000)
	maker := m.Maker.PublicKey()
	offer := program.EscrowMake{DecimalX: 6, AmountX: 500_000_000, DecimalY: 9, AmountY: 10_000_000_000, ID: 7}

	// Made before the indexer starts: picked up by the initial backfill.
	_, err := ln.Client.Make(ctx, m.Maker, m.MintX, m.MintY, m.Owner.PublicKey(), offer)
	require.NoError(t, err)

	ws, err := solana.NewWSClient(ctx, ln.WSURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	offers := memory.NewOfferStore()
	executions := memory.NewExecutionStore()
	ix, err := indexer.New(indexer.Options{
		RPC:        ln.RPC,
		WS:         ws,
		Offers:     offers,
		Executions: executions,
		Progress:   memory.NewProgressStore(),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- ix.Run(ctx) }()

	escrow7, _, err := program.EscrowAddress(program.ProgramID, maker, 7)
	require.NoError(t, err)
	waitStatus := func(escrow solana.PublicKey, want domain.OfferStatus) *domain.Offer {
		t.Helper()
		var got *domain.Offer
		require.Eventually(t, func() bool {
			o, err := offers.GetByAddress(context.Background(), escrow.String())
			if err != nil {
				return false
			}
			got = o
			return o.Status == want
		}, 5*time.Second, 20*time.Millisecond, "offer %s never reached %s", escrow, want)
		return got
	}

	o := waitStatus(escrow7, domain.OfferOpen)
	assert.Equal(t, maker.String(), o.Maker)
	assert.Equal(t, m.MintX.String(), o.MintX)
	assert.Equal(t, m.MintY.String(), o.MintY)
	assert.Equal(t, uint64(500_000_000), o.AmountX)
	assert.Equal(t, uint64(10_000_000_000), o.AmountY)
	assert.Equal(t, uint8(6), o.DecimalX)
	assert.Equal(t, uint8(9), o.DecimalY)

	takeSig, err := ln.Client.Take(ctx, m.Taker, maker, m.MintX, m.MintY, m.Owner.PublicKey(), program.EscrowTake(offer))
	require.NoError(t, err)
	o = waitStatus(escrow7, domain.OfferTaken)
	require.NotNil(t, o.Taker)
	assert.Equal(t, m.Taker.PublicKey().String(), *o.Taker)
	assert.Equal(t, takeSig, *o.ClosedSignature)

	_, err = ln.Client.Withdraw(ctx, m.Maker, m.MintY, 7)
	require.NoError(t, err)
	waitStatus(escrow7, domain.OfferWithdrawn)

	second := offer
	second.ID = 8
	_, err = ln.Client.Make(ctx, m.Maker, m.MintX, m.MintY, m.Owner.PublicKey(), second)
	require.NoError(t, err)
	_, err = ln.Client.Cancel(ctx, m.Maker, m.MintX, m.MintY, m.Owner.PublicKey(), 8)
	require.NoError(t, err)
	escrow8, _, err := program.EscrowAddress(program.ProgramID, maker, 8)
	require.NoError(t, err)
	waitStatus(escrow8, domain.OfferCancelled)

	execs, err := executions.GetBySlotRange(context.Background(), 0, 1<<40)
	require.NoError(t, err)
	kinds := make(map[domain.EventKind]int)
	for _, e := range execs {
		kinds[e.Kind]++
	}
	assert.Equal(t, map[domain.EventKind]int{
		domain.EventConfigInit:     1,
		domain.EventEscrowMake:     2,
		domain.EventEscrowTake:     1,
		domain.EventEscrowWithdraw: 1,
		domain.EventEscrowCancel:   1,
	}, kinds)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("indexer did not stop")
	}
}
