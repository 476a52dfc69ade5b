package reporting

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-escrow-lab/internal/domain"
	"solana-escrow-lab/internal/storage/memory"
)

var fixedTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func offer(escrow, maker string, slot int64, status domain.OfferStatus) *domain.Offer {
	o := &domain.Offer{
		Escrow:          escrow,
		Maker:           maker,
		MintX:           "MintX",
		MintY:           "MintY",
		AmountX:         1_500_000,
		AmountY:         2_000,
		DecimalX:        6,
		DecimalY:        3,
		Status:          status,
		OpenedSlot:      slot,
		OpenedSignature: "open-" + escrow,
	}
	if status != domain.OfferOpen {
		o.ClosedSlot = ptr(slot + 1)
		o.ClosedSignature = ptr("close-" + escrow)
	}
	if status == domain.OfferTaken || status == domain.OfferWithdrawn {
		o.Taker = ptr("taker")
	}
	return o
}

func newTestGenerator(t *testing.T, offers []*domain.Offer, executions []*domain.Execution) *Generator {
	t.Helper()
	ctx := context.Background()
	offerStore := memory.NewOfferStore()
	for _, o := range offers {
		require.NoError(t, offerStore.Upsert(ctx, o))
	}
	execStore := memory.NewExecutionStore()
	if len(executions) > 0 {
		require.NoError(t, execStore.InsertBulk(ctx, executions))
	}
	return NewGenerator(offerStore, execStore).WithClock(func() time.Time { return fixedTime })
}

func TestGenerate(t *testing.T) {
	offers := []*domain.Offer{
		offer("e1", "alice", 10, domain.OfferOpen),
		offer("e2", "alice", 11, domain.OfferTaken),
		offer("e3", "bob", 12, domain.OfferWithdrawn),
		offer("e4", "bob", 13, domain.OfferCancelled),
		offer("e5", "carol", 500, domain.OfferOpen), // out of range
	}
	other := offer("e6", "carol", 14, domain.OfferOpen)
	other.MintX, other.MintY = "MintA", "MintB"
	offers = append(offers, other)

	executions := []*domain.Execution{
		{Signature: "open-e1", Slot: 10, Kind: domain.EventEscrowMake, Account: "e1", AmountX: 1_500_000},
		{Signature: "open-e2", Slot: 11, Kind: domain.EventEscrowMake, Account: "e2", AmountX: 1_500_000},
		{Signature: "close-e2", Slot: 12, Kind: domain.EventEscrowTake, Account: "e2", AmountX: 1_500_000, AmountY: 2_000},
		{Signature: "cfg", Slot: 9, Kind: domain.EventConfigInit, Account: "config"},
		{Signature: "late", Slot: 900, Kind: domain.EventEscrowCancel, Account: "e5"},
	}

	g := newTestGenerator(t, offers, executions)
	r, err := g.Generate(context.Background(), 0, 100)
	require.NoError(t, err)

	assert.Equal(t, fixedTime, r.GeneratedAt)
	assert.Equal(t, OfferSummary{Open: 2, Taken: 1, Withdrawn: 1, Cancelled: 1}, r.Offers)
	assert.Equal(t, 5, r.Offers.Total())

	require.Len(t, r.Pairs, 2)
	assert.Equal(t, PairRow{MintX: "MintA", MintY: "MintB", Open: 1, DecimalX: 6, DecimalY: 3}, r.Pairs[0])
	assert.Equal(t, PairRow{
		MintX: "MintX", MintY: "MintY",
		Open: 1, Settled: 2, Cancelled: 1,
		VolumeX: 3_000_000, VolumeY: 4_000,
		DecimalX: 6, DecimalY: 3,
	}, r.Pairs[1])

	require.Len(t, r.Makers, 3)
	assert.Equal(t, MakerRow{Maker: "alice", Offers: 2, Open: 1, Settled: 1}, r.Makers[0])
	assert.Equal(t, MakerRow{Maker: "bob", Offers: 2, Settled: 1}, r.Makers[1])
	assert.Equal(t, "carol", r.Makers[2].Maker)

	assert.Equal(t, []KindRow{
		{Kind: domain.EventConfigInit, Count: 1},
		{Kind: domain.EventEscrowMake, Count: 2, AmountX: 3_000_000},
		{Kind: domain.EventEscrowTake, Count: 1, AmountX: 1_500_000, AmountY: 2_000},
	}, r.Executions)
	assert.Empty(t, r.Integrity)
}

func TestGenerate_Integrity(t *testing.T) {
	broken := offer("e1", "alice", 10, domain.OfferTaken)
	broken.Taker = nil
	broken.ClosedSignature = nil

	executions := []*domain.Execution{
		{Signature: "orphan", EventIndex: 2, Slot: 20, Kind: domain.EventEscrowTake, Account: "ghost"},
		{Signature: "cfg", Slot: 21, Kind: domain.EventConfigUpdate, Account: "not-an-offer"},
	}

	g := newTestGenerator(t, []*domain.Offer{broken}, executions)
	r, err := g.Generate(context.Background(), 0, 100)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"offer e1 is TAKEN without a taker",
		"offer e1 is TAKEN without a closing signature",
		"escrow_take orphan#2: no offer for escrow ghost",
	}, r.Integrity)
}

func TestGenerate_InvalidRange(t *testing.T) {
	g := newTestGenerator(t, nil, nil)
	_, err := g.Generate(context.Background(), 10, 5)
	assert.Error(t, err)
	_, err = g.Generate(context.Background(), -1, 5)
	assert.Error(t, err)
}

func TestRenderMarkdown(t *testing.T) {
	g := newTestGenerator(t, []*domain.Offer{
		offer("e1", "alice", 10, domain.OfferWithdrawn),
	}, nil)
	r, err := g.Generate(context.Background(), 0, 100)
	require.NoError(t, err)

	md := RenderMarkdown(r)
	assert.True(t, strings.HasPrefix(md, "# Escrow Activity Report\n"))
	assert.Contains(t, md, "Generated: 2026-01-02T03:04:05Z")
	assert.Contains(t, md, "Slots: 0 to 100")
	assert.Contains(t, md, "| WITHDRAWN | 1 |")
	assert.Contains(t, md, "| MintX | MintY | 0 | 1 | 0 | 1.5 | 2 |")
	assert.Contains(t, md, "| alice | 1 | 0 | 1 |")
	assert.Contains(t, md, "No executions in range.")
	assert.Contains(t, md, "Offers and executions are consistent.")
}

func TestRenderMarkdown_Empty(t *testing.T) {
	r, err := newTestGenerator(t, nil, nil).Generate(context.Background(), 0, 0)
	require.NoError(t, err)

	md := RenderMarkdown(r)
	assert.Contains(t, md, "No offers opened in range.")
	assert.NotContains(t, md, "## Makers")
}

func TestRenderCSV(t *testing.T) {
	g := newTestGenerator(t, []*domain.Offer{
		offer("e1", "alice", 10, domain.OfferTaken),
		offer("e2", "alice", 11, domain.OfferOpen),
	}, nil)
	r, err := g.Generate(context.Background(), 0, 100)
	require.NoError(t, err)

	assert.Equal(t,
		"mint_x,mint_y,decimal_x,decimal_y,open,settled,cancelled,volume_x,volume_y\n"+
			"MintX,MintY,6,3,1,1,0,1500000,2000\n",
		RenderCSV(r))
}

func TestAddSaturating(t *testing.T) {
	assert.Equal(t, uint64(5), addSaturating(2, 3))
	assert.Equal(t, ^uint64(0), addSaturating(^uint64(0)-1, 5))
}
