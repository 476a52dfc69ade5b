package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-escrow-lab/internal/domain"
	"solana-escrow-lab/internal/storage"
)

// ExecutionStore implements storage.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ExecutionStore = (*ExecutionStore)(nil)

const insertExecution = `
	INSERT INTO executions (
		signature, event_index, slot, timestamp, kind, account, actor, counterparty,
		offer_id, amount_x, amount_y
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

const selectExecution = `
	SELECT signature, event_index, slot, timestamp, kind, account, actor, counterparty,
		offer_id, amount_x, amount_y, created_at
	FROM executions
`

func executionArgs(e *domain.Execution) ([]any, error) {
	if err := storage.ValidateExecution(e); err != nil {
		return nil, err
	}
	if err := checkBigint("execution amount", e.OfferID, e.AmountX, e.AmountY); err != nil {
		return nil, err
	}
	return []any{
		e.Signature,
		e.EventIndex,
		e.Slot,
		e.Timestamp,
		string(e.Kind),
		e.Account,
		e.Actor,
		e.Counterparty,
		int64(e.OfferID),
		int64(e.AmountX),
		int64(e.AmountY),
	}, nil
}

// Insert adds a new execution. Returns ErrDuplicateKey if (signature, event_index) exists.
func (s *ExecutionStore) Insert(ctx context.Context, e *domain.Execution) error {
	args, err := executionArgs(e)
	if err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, insertExecution, args...); err != nil {
		return fmt.Errorf("insert execution: %w", mapError(err))
	}
	return nil
}

// InsertBulk adds multiple executions atomically. Fails entire batch on any duplicate.
func (s *ExecutionStore) InsertBulk(ctx context.Context, executions []*domain.Execution) error {
	if len(executions) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range executions {
		args, err := executionArgs(e)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, insertExecution, args...); err != nil {
			return fmt.Errorf("insert execution in bulk: %w", mapError(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetBySignature retrieves the executions of one transaction, ordered by event index ASC.
func (s *ExecutionStore) GetBySignature(ctx context.Context, signature string) ([]*domain.Execution, error) {
	rows, err := s.pool.Query(ctx, selectExecution+`WHERE signature = $1 ORDER BY event_index ASC`, signature)
	if err != nil {
		return nil, fmt.Errorf("get executions by signature: %w", err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// GetBySlotRange retrieves executions within [start, end] (inclusive).
func (s *ExecutionStore) GetBySlotRange(ctx context.Context, start, end int64) ([]*domain.Execution, error) {
	query := selectExecution + `
		WHERE slot >= $1 AND slot <= $2
		ORDER BY slot ASC, signature ASC, event_index ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get executions by slot range: %w", err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// scanExecutions scans multiple rows into a slice of Execution.
func scanExecutions(rows pgx.Rows) ([]*domain.Execution, error) {
	var executions []*domain.Execution

	for rows.Next() {
		var (
			e                         domain.Execution
			kind                      string
			offerID, amountX, amountY int64
		)

		err := rows.Scan(
			&e.Signature,
			&e.EventIndex,
			&e.Slot,
			&e.Timestamp,
			&kind,
			&e.Account,
			&e.Actor,
			&e.Counterparty,
			&offerID,
			&amountX,
			&amountY,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan execution row: %w", err)
		}

		e.Kind = domain.EventKind(kind)
		e.OfferID = uint64(offerID)
		e.AmountX = uint64(amountX)
		e.AmountY = uint64(amountY)
		executions = append(executions, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution rows: %w", err)
	}

	return executions, nil
}
