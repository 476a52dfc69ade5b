package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-escrow-lab/internal/domain"
	"solana-escrow-lab/internal/storage"
)

// OfferStore implements storage.OfferStore using PostgreSQL.
type OfferStore struct {
	pool *Pool
}

// NewOfferStore creates a new OfferStore.
func NewOfferStore(pool *Pool) *OfferStore {
	return &OfferStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OfferStore = (*OfferStore)(nil)

const offerColumns = `escrow, maker, offer_id, mint_x, mint_y, amount_x, amount_y, decimal_x, decimal_y,
	status, taker, opened_slot, opened_signature, closed_slot, closed_signature, updated_at`

// Upsert inserts an offer or replaces the row with the same escrow address.
func (s *OfferStore) Upsert(ctx context.Context, o *domain.Offer) error {
	if err := storage.ValidateOffer(o); err != nil {
		return err
	}
	if err := checkBigint("offer amount", o.OfferID, o.AmountX, o.AmountY); err != nil {
		return err
	}

	updatedAt := o.UpdatedAt
	if updatedAt == 0 {
		updatedAt = time.Now().UnixMilli()
	}

	query := `
		INSERT INTO offers (` + offerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (escrow) DO UPDATE
		SET maker = EXCLUDED.maker,
		    offer_id = EXCLUDED.offer_id,
		    mint_x = EXCLUDED.mint_x,
		    mint_y = EXCLUDED.mint_y,
		    amount_x = EXCLUDED.amount_x,
		    amount_y = EXCLUDED.amount_y,
		    decimal_x = EXCLUDED.decimal_x,
		    decimal_y = EXCLUDED.decimal_y,
		    status = EXCLUDED.status,
		    taker = EXCLUDED.taker,
		    opened_slot = EXCLUDED.opened_slot,
		    opened_signature = EXCLUDED.opened_signature,
		    closed_slot = EXCLUDED.closed_slot,
		    closed_signature = EXCLUDED.closed_signature,
		    updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		o.Escrow,
		o.Maker,
		int64(o.OfferID),
		o.MintX,
		o.MintY,
		int64(o.AmountX),
		int64(o.AmountY),
		int16(o.DecimalX),
		int16(o.DecimalY),
		string(o.Status),
		o.Taker,
		o.OpenedSlot,
		o.OpenedSignature,
		o.ClosedSlot,
		o.ClosedSignature,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert offer: %w", err)
	}
	return nil
}

// GetByAddress retrieves an offer by its escrow address.
func (s *OfferStore) GetByAddress(ctx context.Context, escrow string) (*domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE escrow = $1`

	o, err := scanOffer(s.pool.QueryRow(ctx, query, escrow))
	if err != nil {
		return nil, fmt.Errorf("get offer by address: %w", mapError(err))
	}
	return o, nil
}

// GetByMaker retrieves all offers of a maker, ordered by offer id ASC.
func (s *OfferStore) GetByMaker(ctx context.Context, maker string) ([]*domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE maker = $1 ORDER BY offer_id ASC`

	rows, err := s.pool.Query(ctx, query, maker)
	if err != nil {
		return nil, fmt.Errorf("get offers by maker: %w", err)
	}
	defer rows.Close()

	return scanOffers(rows)
}

// GetByStatus retrieves all offers in a status, ordered by opened slot ASC.
func (s *OfferStore) GetByStatus(ctx context.Context, status domain.OfferStatus) ([]*domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE status = $1 ORDER BY opened_slot ASC, escrow ASC`

	rows, err := s.pool.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("get offers by status: %w", err)
	}
	defer rows.Close()

	return scanOffers(rows)
}

// scanOffer scans a single row into an Offer.
func scanOffer(row pgx.Row) (*domain.Offer, error) {
	var (
		o                         domain.Offer
		offerID, amountX, amountY int64
		decimalX, decimalY        int16
		status                    string
	)

	err := row.Scan(
		&o.Escrow,
		&o.Maker,
		&offerID,
		&o.MintX,
		&o.MintY,
		&amountX,
		&amountY,
		&decimalX,
		&decimalY,
		&status,
		&o.Taker,
		&o.OpenedSlot,
		&o.OpenedSignature,
		&o.ClosedSlot,
		&o.ClosedSignature,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.OfferID = uint64(offerID)
	o.AmountX = uint64(amountX)
	o.AmountY = uint64(amountY)
	o.DecimalX = uint8(decimalX)
	o.DecimalY = uint8(decimalY)
	o.Status = domain.OfferStatus(status)
	return &o, nil
}

// scanOffers scans multiple rows into a slice of Offer.
func scanOffers(rows pgx.Rows) ([]*domain.Offer, error) {
	var offers []*domain.Offer

	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer row: %w", err)
		}
		offers = append(offers, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offer rows: %w", err)
	}

	return offers, nil
}
