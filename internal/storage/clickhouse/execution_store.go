package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-escrow-lab/internal/domain"
	"solana-escrow-lab/internal/storage"
)

// ExecutionStore implements storage.ExecutionStore using ClickHouse.
// MergeTree does not enforce keys, so duplicates are checked before insert.
type ExecutionStore struct {
	conn *Conn
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(conn *Conn) *ExecutionStore {
	return &ExecutionStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ExecutionStore = (*ExecutionStore)(nil)

const selectExecutions = `
	SELECT signature, event_index, slot, timestamp_ms, kind, account, actor, counterparty,
		offer_id, amount_x, amount_y, created_at
	FROM executions FINAL
`

// Insert adds a new execution. Returns ErrDuplicateKey if (signature, event_index) exists.
func (s *ExecutionStore) Insert(ctx context.Context, e *domain.Execution) error {
	return s.InsertBulk(ctx, []*domain.Execution{e})
}

// InsertBulk adds multiple executions in one batch. Fails entire batch on any duplicate.
func (s *ExecutionStore) InsertBulk(ctx context.Context, executions []*domain.Execution) error {
	if len(executions) == 0 {
		return nil
	}

	type key struct {
		signature  string
		eventIndex int
	}
	seen := make(map[key]struct{}, len(executions))
	for _, e := range executions {
		if err := storage.ValidateExecution(e); err != nil {
			return err
		}
		k := key{e.Signature, e.EventIndex}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, e := range executions {
		exists, err := s.exists(ctx, e.Signature, e.EventIndex)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO executions (
			signature, event_index, slot, timestamp_ms, kind, account, actor, counterparty,
			offer_id, amount_x, amount_y
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range executions {
		err = batch.Append(
			e.Signature, uint32(e.EventIndex), uint64(e.Slot), uint64(e.Timestamp),
			string(e.Kind), e.Account, e.Actor, e.Counterparty,
			e.OfferID, e.AmountX, e.AmountY,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetBySignature retrieves the executions of one transaction, ordered by event index ASC.
func (s *ExecutionStore) GetBySignature(ctx context.Context, signature string) ([]*domain.Execution, error) {
	rows, err := s.conn.Query(ctx, selectExecutions+`WHERE signature = ? ORDER BY event_index ASC`, signature)
	if err != nil {
		return nil, fmt.Errorf("query by signature: %w", err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// GetBySlotRange retrieves executions within [start, end] (inclusive).
func (s *ExecutionStore) GetBySlotRange(ctx context.Context, start, end int64) ([]*domain.Execution, error) {
	query := selectExecutions + `
		WHERE slot >= ? AND slot <= ?
		ORDER BY slot ASC, signature ASC, event_index ASC
	`

	rows, err := s.conn.Query(ctx, query, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by slot range: %w", err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// exists checks if an execution with the given key exists.
func (s *ExecutionStore) exists(ctx context.Context, signature string, eventIndex int) (bool, error) {
	query := `
		SELECT count(*) FROM executions
		WHERE signature = ? AND event_index = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, signature, uint32(eventIndex)).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanExecutions scans multiple rows.
func scanExecutions(rows chRows) ([]*domain.Execution, error) {
	var executions []*domain.Execution

	for rows.Next() {
		var (
			e                 domain.Execution
			eventIndex        uint32
			slot, timestampMs uint64
			kind              string
			counterparty      *string
			createdAt         time.Time
		)

		err := rows.Scan(
			&e.Signature, &eventIndex, &slot, &timestampMs, &kind, &e.Account, &e.Actor, &counterparty,
			&e.OfferID, &e.AmountX, &e.AmountY, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan execution row: %w", err)
		}

		e.EventIndex = int(eventIndex)
		e.Slot = int64(slot)
		e.Timestamp = int64(timestampMs)
		e.Kind = domain.EventKind(kind)
		e.Counterparty = counterparty
		e.CreatedAt = createdAt.UnixMilli()
		executions = append(executions, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution rows: %w", err)
	}

	return executions, nil
}
