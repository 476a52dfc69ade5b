package indexer

import (
	"context"
	"errors"
	"fmt"

	"solana-escrow-lab/internal/domain"
	"solana-escrow-lab/internal/storage"
)

// ErrUnknownOffer is returned when an escrow event refers to an offer whose make
// was never indexed.
var ErrUnknownOffer = errors.New("offer not indexed")

// applyOffer folds one escrow event into the offer projection.
// It reports whether the projection changed. Config events are ignored.
func applyOffer(ctx context.Context, offers storage.OfferStore, ev *Event, now int64) (bool, error) {
	e := ev.Execution
	if e.Kind == domain.EventEscrowMake {
		// A make always starts a fresh offer: the escrow address is reused once
		// the previous offer under the same id was withdrawn or cancelled.
		return true, offers.Upsert(ctx, &domain.Offer{
			Escrow:          e.Account,
			Maker:           e.Actor,
			OfferID:         e.OfferID,
			MintX:           ev.MintX,
			MintY:           ev.MintY,
			AmountX:         e.AmountX,
			AmountY:         e.AmountY,
			DecimalX:        ev.DecimalX,
			DecimalY:        ev.DecimalY,
			Status:          domain.OfferOpen,
			OpenedSlot:      e.Slot,
			OpenedSignature: e.Signature,
			UpdatedAt:       now,
		})
	}

	var next domain.OfferStatus
	switch e.Kind {
	case domain.EventEscrowTake:
		next = domain.OfferTaken
	case domain.EventEscrowWithdraw:
		next = domain.OfferWithdrawn
	case domain.EventEscrowCancel:
		next = domain.OfferCancelled
	default:
		return false, nil
	}

	o, err := offers.GetByAddress(ctx, e.Account)
	if errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("%w: %s %s", ErrUnknownOffer, e.Kind, e.Account)
	}
	if err != nil {
		return false, err
	}
	if !canTransition(o.Status, next) {
		return false, nil
	}

	o.Status = next
	o.UpdatedAt = now
	switch next {
	case domain.OfferTaken:
		taker := e.Actor
		o.Taker = &taker
		closeOffer(o, e)
	case domain.OfferCancelled:
		closeOffer(o, e)
	}
	return true, offers.Upsert(ctx, o)
}

func closeOffer(o *domain.Offer, e *domain.Execution) {
	slot, sig := e.Slot, e.Signature
	o.ClosedSlot = &slot
	o.ClosedSignature = &sig
}

// canTransition reports whether an offer in from may move to to.
// Replayed or out-of-order events that would move an offer backwards are dropped.
func canTransition(from, to domain.OfferStatus) bool {
	switch to {
	case domain.OfferTaken, domain.OfferCancelled:
		return from == domain.OfferOpen
	case domain.OfferWithdrawn:
		return from == domain.OfferTaken
	}
	return false
}
