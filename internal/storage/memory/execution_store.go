package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"solana-escrow-lab/internal/domain"
	"solana-escrow-lab/internal/storage"
)

// ExecutionStore is an in-memory implementation of storage.ExecutionStore.
type ExecutionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Execution // keyed by composite key
}

// NewExecutionStore creates a new in-memory execution store.
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{
		data: make(map[string]*domain.Execution),
	}
}

// executionKey generates a unique key for an execution.
func executionKey(signature string, eventIndex int) string {
	return fmt.Sprintf("%s|%d", signature, eventIndex)
}

// Insert adds a new execution. Returns ErrDuplicateKey if exists.
func (s *ExecutionStore) Insert(_ context.Context, e *domain.Execution) error {
	if err := storage.ValidateExecution(e); err != nil {
		return err
	}

	key := executionKey(e.Signature, e.EventIndex)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[key] = cloneExecution(e)
	return nil
}

// InsertBulk adds multiple executions atomically. Fails entire batch on any duplicate.
func (s *ExecutionStore) InsertBulk(_ context.Context, executions []*domain.Execution) error {
	if len(executions) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(executions))

	// First pass: validate and check duplicates, existing and intra-batch.
	for _, e := range executions {
		if err := storage.ValidateExecution(e); err != nil {
			return err
		}
		key := executionKey(e.Signature, e.EventIndex)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, e := range executions {
		s.data[executionKey(e.Signature, e.EventIndex)] = cloneExecution(e)
	}
	return nil
}

// GetBySignature retrieves the executions of one transaction, ordered by event index ASC.
func (s *ExecutionStore) GetBySignature(_ context.Context, signature string) ([]*domain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Execution
	for _, e := range s.data {
		if e.Signature == signature {
			result = append(result, cloneExecution(e))
		}
	}

	sortExecutions(result)
	return result, nil
}

// GetBySlotRange retrieves executions within [start, end] (inclusive).
func (s *ExecutionStore) GetBySlotRange(_ context.Context, start, end int64) ([]*domain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Execution
	for _, e := range s.data {
		if e.Slot >= start && e.Slot <= end {
			result = append(result, cloneExecution(e))
		}
	}

	sortExecutions(result)
	return result, nil
}

func sortExecutions(result []*domain.Execution) {
	sort.Slice(result, func(i, j int) bool {
		if result[i].Slot != result[j].Slot {
			return result[i].Slot < result[j].Slot
		}
		if result[i].Signature != result[j].Signature {
			return result[i].Signature < result[j].Signature
		}
		return result[i].EventIndex < result[j].EventIndex
	})
}

func cloneExecution(e *domain.Execution) *domain.Execution {
	c := *e
	if e.Counterparty != nil {
		cp := *e.Counterparty
		c.Counterparty = &cp
	}
	return &c
}

var _ storage.ExecutionStore = (*ExecutionStore)(nil)
