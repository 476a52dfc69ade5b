package memory

import (
	"context"
	"errors"
	"testing"

	"solana-escrow-lab/internal/domain"
	"solana-escrow-lab/internal/storage"
)

func testOffer(escrow, maker string, id uint64, slot int64) *domain.Offer {
	return &domain.Offer{
		Escrow:          escrow,
		Maker:           maker,
		OfferID:         id,
		MintX:           "mintX",
		MintY:           "mintY",
		AmountX:         500_000_000,
		AmountY:         10_000_000_000,
		DecimalX:        6,
		DecimalY:        9,
		Status:          domain.OfferOpen,
		OpenedSlot:      slot,
		OpenedSignature: "sig-" + escrow,
	}
}

func TestOfferStore_UpsertAndGet(t *testing.T) {
	store := NewOfferStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, testOffer("e1", "maker1", 7, 100)); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.GetByAddress(ctx, "e1")
	if err != nil {
		t.Fatalf("GetByAddress failed: %v", err)
	}
	if got.OfferID != 7 || got.AmountY != 10_000_000_000 {
		t.Errorf("unexpected offer: %+v", got)
	}

	// Upsert replaces the record.
	taken := testOffer("e1", "maker1", 7, 100)
	taken.Status = domain.OfferTaken
	taker := "taker1"
	taken.Taker = &taker
	if err := store.Upsert(ctx, taken); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	got, err = store.GetByAddress(ctx, "e1")
	if err != nil {
		t.Fatalf("GetByAddress failed: %v", err)
	}
	if got.Status != domain.OfferTaken || got.Taker == nil || *got.Taker != "taker1" {
		t.Errorf("upsert not applied: %+v", got)
	}

	// Stored copy is isolated from the caller.
	taker = "mutated"
	got, _ = store.GetByAddress(ctx, "e1")
	if *got.Taker != "taker1" {
		t.Errorf("stored taker aliased caller memory: %s", *got.Taker)
	}
}

func TestOfferStore_NotFound(t *testing.T) {
	store := NewOfferStore()

	_, err := store.GetByAddress(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestOfferStore_InvalidInput(t *testing.T) {
	store := NewOfferStore()
	ctx := context.Background()

	bad := testOffer("e1", "maker1", 1, 1)
	bad.Status = "LOST"
	if err := store.Upsert(ctx, bad); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for status, got %v", err)
	}
	if err := store.Upsert(ctx, testOffer("", "maker1", 1, 1)); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty escrow, got %v", err)
	}
}

func TestOfferStore_Queries(t *testing.T) {
	store := NewOfferStore()
	ctx := context.Background()

	offers := []*domain.Offer{
		testOffer("e3", "maker1", 3, 300),
		testOffer("e1", "maker1", 1, 200),
		testOffer("e2", "maker2", 2, 100),
	}
	offers[1].Status = domain.OfferCancelled
	for _, o := range offers {
		if err := store.Upsert(ctx, o); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	byMaker, err := store.GetByMaker(ctx, "maker1")
	if err != nil {
		t.Fatalf("GetByMaker failed: %v", err)
	}
	if len(byMaker) != 2 || byMaker[0].OfferID != 1 || byMaker[1].OfferID != 3 {
		t.Errorf("GetByMaker order wrong: %+v", byMaker)
	}

	open, err := store.GetByStatus(ctx, domain.OfferOpen)
	if err != nil {
		t.Fatalf("GetByStatus failed: %v", err)
	}
	if len(open) != 2 || open[0].Escrow != "e2" || open[1].Escrow != "e3" {
		t.Errorf("GetByStatus order wrong: %+v", open)
	}
}
