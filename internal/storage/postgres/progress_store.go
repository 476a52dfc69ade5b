package postgres

import (
	"context"
	"fmt"

	"solana-escrow-lab/internal/storage"
)

// ProgressStore is a PostgreSQL implementation of storage.ProgressStore.
// The indexer_progress table holds a single row with id = 1.
type ProgressStore struct {
	pool *Pool
}

// NewProgressStore creates a new PostgreSQL progress store.
func NewProgressStore(pool *Pool) *ProgressStore {
	return &ProgressStore{pool: pool}
}

var _ storage.ProgressStore = (*ProgressStore)(nil)

// GetLastProcessed returns the last processed slot and signature.
func (s *ProgressStore) GetLastProcessed(ctx context.Context) (*storage.IndexerProgress, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT slot, signature
		FROM indexer_progress
		WHERE id = 1
	`)

	var progress storage.IndexerProgress
	if err := row.Scan(&progress.Slot, &progress.Signature); err != nil {
		return nil, fmt.Errorf("get indexer progress: %w", mapError(err))
	}

	return &progress, nil
}

// SetLastProcessed saves the last processed slot and signature.
func (s *ProgressStore) SetLastProcessed(ctx context.Context, progress *storage.IndexerProgress) error {
	if progress == nil {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_progress (id, slot, signature, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET slot = EXCLUDED.slot,
		    signature = EXCLUDED.signature,
		    updated_at = NOW()
	`, progress.Slot, progress.Signature)
	if err != nil {
		return fmt.Errorf("set indexer progress: %w", err)
	}
	return nil
}
