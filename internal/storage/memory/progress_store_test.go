package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-escrow-lab/internal/storage"
)

func TestProgressStore(t *testing.T) {
	store := NewProgressStore()
	ctx := context.Background()

	_, err := store.GetLastProcessed(ctx)
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.ErrorIs(t, store.SetLastProcessed(ctx, nil), storage.ErrInvalidInput)

	require.NoError(t, store.SetLastProcessed(ctx, &storage.IndexerProgress{Slot: 100, Signature: "a"}))
	require.NoError(t, store.SetLastProcessed(ctx, &storage.IndexerProgress{Slot: 200, Signature: "b"}))

	got, err := store.GetLastProcessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, &storage.IndexerProgress{Slot: 200, Signature: "b"}, got)
}
