package memory

import (
	"context"
	"sync"

	"solana-escrow-lab/internal/storage"
)

// ProgressStore is an in-memory implementation of storage.ProgressStore.
type ProgressStore struct {
	mu       sync.RWMutex
	progress *storage.IndexerProgress
}

// NewProgressStore creates a new in-memory progress store.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{}
}

// GetLastProcessed returns the last processed slot and signature.
func (s *ProgressStore) GetLastProcessed(_ context.Context) (*storage.IndexerProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.progress == nil {
		return nil, storage.ErrNotFound
	}
	p := *s.progress
	return &p, nil
}

// SetLastProcessed saves the last processed slot and signature.
func (s *ProgressStore) SetLastProcessed(_ context.Context, progress *storage.IndexerProgress) error {
	if progress == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := *progress
	s.progress = &p
	return nil
}

var _ storage.ProgressStore = (*ProgressStore)(nil)
