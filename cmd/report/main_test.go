package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-escrow-lab/internal/domain"
	"solana-escrow-lab/internal/reporting"
	"solana-escrow-lab/internal/storage"
	"solana-escrow-lab/internal/storage/memory"
)

func noEnv(string) (string, bool) { return "", false }

func TestRun_UsageErrors(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"-env-file", "", "-format", "pdf"}, &out, noEnv)
	assert.ErrorIs(t, err, errUsage)

	err = run(context.Background(), []string{"-env-file", ""}, &out, noEnv)
	assert.ErrorIs(t, err, errUsage)
}

func TestSlotRange(t *testing.T) {
	ctx := context.Background()
	progress := memory.NewProgressStore()

	from, to, err := slotRange(ctx, progress, 5, 50)
	require.NoError(t, err)
	assert.Equal(t, [2]int64{5, 50}, [2]int64{from, to})

	from, to, err = slotRange(ctx, progress, 5, -1)
	require.NoError(t, err)
	assert.Equal(t, [2]int64{5, 5}, [2]int64{from, to})

	require.NoError(t, progress.SetLastProcessed(ctx, &storage.IndexerProgress{Slot: 42, Signature: "sig"}))
	from, to, err = slotRange(ctx, progress, 5, -1)
	require.NoError(t, err)
	assert.Equal(t, [2]int64{5, 42}, [2]int64{from, to})
}

func TestRender(t *testing.T) {
	ctx := context.Background()
	offers := memory.NewOfferStore()
	require.NoError(t, offers.Upsert(ctx, &domain.Offer{
		Escrow: "e1", Maker: "alice", MintX: "X", MintY: "Y",
		AmountX: 10, AmountY: 20, Status: domain.OfferOpen, OpenedSlot: 3,
	}))
	gen := reporting.NewGenerator(offers, memory.NewExecutionStore())

	md, err := render(ctx, gen, 0, 10, formatMarkdown)
	require.NoError(t, err)
	assert.Contains(t, md, "| OPEN | 1 |")

	csv, err := render(ctx, gen, 0, 10, formatCSV)
	require.NoError(t, err)
	assert.Contains(t, csv, "X,Y,0,0,1,0,0,0,0\n")

	_, err = render(ctx, gen, 10, 0, formatCSV)
	assert.Error(t, err)
}
