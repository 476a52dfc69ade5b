package memory

import (
	"context"
	"sort"
	"sync"

	"solana-escrow-lab/internal/domain"
	"solana-escrow-lab/internal/storage"
)

// OfferStore is an in-memory implementation of storage.OfferStore.
type OfferStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Offer // keyed by escrow address
}

// NewOfferStore creates a new in-memory offer store.
func NewOfferStore() *OfferStore {
	return &OfferStore{
		data: make(map[string]*domain.Offer),
	}
}

// Upsert inserts or replaces the offer keyed by its escrow address.
func (s *OfferStore) Upsert(_ context.Context, o *domain.Offer) error {
	if err := storage.ValidateOffer(o); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[o.Escrow] = cloneOffer(o)
	return nil
}

// GetByAddress retrieves an offer by escrow address.
func (s *OfferStore) GetByAddress(_ context.Context, escrow string) (*domain.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.data[escrow]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneOffer(o), nil
}

// GetByMaker retrieves all offers of a maker, ordered by offer id ASC.
func (s *OfferStore) GetByMaker(_ context.Context, maker string) ([]*domain.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Offer
	for _, o := range s.data {
		if o.Maker == maker {
			result = append(result, cloneOffer(o))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].OfferID < result[j].OfferID
	})
	return result, nil
}

// GetByStatus retrieves all offers in a status, ordered by opened slot ASC.
func (s *OfferStore) GetByStatus(_ context.Context, status domain.OfferStatus) ([]*domain.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Offer
	for _, o := range s.data {
		if o.Status == status {
			result = append(result, cloneOffer(o))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].OpenedSlot != result[j].OpenedSlot {
			return result[i].OpenedSlot < result[j].OpenedSlot
		}
		return result[i].Escrow < result[j].Escrow
	})
	return result, nil
}

// cloneOffer copies o including its nullable fields.
func cloneOffer(o *domain.Offer) *domain.Offer {
	c := *o
	if o.Taker != nil {
		taker := *o.Taker
		c.Taker = &taker
	}
	if o.ClosedSlot != nil {
		slot := *o.ClosedSlot
		c.ClosedSlot = &slot
	}
	if o.ClosedSignature != nil {
		sig := *o.ClosedSignature
		c.ClosedSignature = &sig
	}
	return &c
}

var _ storage.OfferStore = (*OfferStore)(nil)
