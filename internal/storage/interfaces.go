package storage

import (
	"context"

	"solana-escrow-lab/internal/domain"
)

// OfferStore provides access to offers storage.
// Offers are mutable projections: the indexer upserts them as escrow events arrive.
type OfferStore interface {
	// Upsert inserts an offer or replaces the row with the same escrow address.
	Upsert(ctx context.Context, o *domain.Offer) error

	// GetByAddress retrieves an offer by its escrow address. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, escrow string) (*domain.Offer, error)

	// GetByMaker retrieves all offers of a maker, ordered by offer id ASC.
	GetByMaker(ctx context.Context, maker string) ([]*domain.Offer, error)

	// GetByStatus retrieves all offers in a status, ordered by opened slot ASC.
	GetByStatus(ctx context.Context, status domain.OfferStatus) ([]*domain.Offer, error)
}

// ExecutionStore provides access to executions storage.
type ExecutionStore interface {
	// Insert adds a new execution. Returns ErrDuplicateKey if (signature, event_index) exists.
	Insert(ctx context.Context, e *domain.Execution) error

	// InsertBulk adds multiple executions atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, executions []*domain.Execution) error

	// GetBySignature retrieves the executions of one transaction, ordered by event index ASC.
	GetBySignature(ctx context.Context, signature string) ([]*domain.Execution, error)

	// GetBySlotRange retrieves executions within [start, end] (inclusive),
	// ordered by slot ASC then event index ASC.
	GetBySlotRange(ctx context.Context, start, end int64) ([]*domain.Execution, error)
}
