package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"solana-escrow-lab/internal/storage"
)

// Pool is the connection pool shared by the offer, execution and progress
// stores.
type Pool struct {
	*pgxpool.Pool
}

const pingTimeout = 5 * time.Second

// NewPool opens a pool for dsn and fails fast when the server is unreachable.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres %s: %w", cfg.ConnConfig.Host, err)
	}
	return &Pool{Pool: pool}, nil
}

const uniqueViolation = "23505"

// mapError translates driver errors into the storage sentinels.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return storage.ErrNotFound
	case errors.As(err, &pgErr) && pgErr.Code == uniqueViolation:
		return fmt.Errorf("%w: %s", storage.ErrDuplicateKey, pgErr.ConstraintName)
	}
	return err
}

// checkBigint rejects token amounts that do not fit a signed BIGINT column.
func checkBigint(field string, values ...uint64) error {
	for _, v := range values {
		if v > math.MaxInt64 {
			return fmt.Errorf("%w: %s %d exceeds bigint", storage.ErrInvalidInput, field, v)
		}
	}
	return nil
}
