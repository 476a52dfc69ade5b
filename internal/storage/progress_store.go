package storage

import "context"

// IndexerProgress represents the last processed position of the indexer.
type IndexerProgress struct {
	Slot      int64  // last processed slot
	Signature string // last processed transaction signature
}

// ProgressStore persists the indexer cursor so a restart resumes without
// reprocessing committed transactions.
type ProgressStore interface {
	// GetLastProcessed returns the last processed slot and signature.
	// Returns ErrNotFound if no progress has been saved yet.
	GetLastProcessed(ctx context.Context) (*IndexerProgress, error)

	// SetLastProcessed saves the last processed slot and signature.
	SetLastProcessed(ctx context.Context, progress *IndexerProgress) error
}
