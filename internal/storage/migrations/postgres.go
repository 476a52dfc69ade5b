package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresDB is satisfied by *pgxpool.Pool and the postgres store's Pool.
type PostgresDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

const createVersionTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version     TEXT PRIMARY KEY,
    applied_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// ApplyPostgres applies every embedded migration not yet recorded in
// schema_migrations and returns the versions it applied. Each migration runs
// in its own transaction together with its version row, so concurrent runners
// serialize on the row and a failed file leaves no trace.
func ApplyPostgres(ctx context.Context, db PostgresDB) ([]string, error) {
	files, err := Files(PostgresFS, "postgres")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(ctx, createVersionTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	var applied []string
	for _, f := range files {
		ok, err := applyPostgresFile(ctx, db, f)
		if err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", f.Version, err)
		}
		if ok {
			applied = append(applied, f.Version)
		}
	}
	return applied, nil
}

func applyPostgresFile(ctx context.Context, db PostgresDB, f File) (bool, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING`, f.Version)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	// No arguments: pgx uses the simple protocol, which accepts several statements.
	if _, err := tx.Exec(ctx, f.SQL); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}
