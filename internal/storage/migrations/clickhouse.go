package migrations

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ClickhouseDB is the part of a ClickHouse connection the runner needs.
type ClickhouseDB interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// ApplyClickhouse applies the embedded ClickHouse migrations statement by
// statement; the native protocol takes one statement per Exec. The files use
// IF NOT EXISTS throughout, so reapplying them is a no-op.
func ApplyClickhouse(ctx context.Context, conn ClickhouseDB) error {
	files, err := Files(ClickhouseFS, "clickhouse")
	if err != nil {
		return err
	}
	for _, f := range files {
		stmts, err := splitStatements(f.SQL)
		if err != nil {
			return fmt.Errorf("migration %s: %w", f.Version, err)
		}
		for _, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", f.Version, err)
			}
		}
	}
	return nil
}

var errUnterminatedQuote = errors.New("unterminated quoted string")

// splitStatements splits sql on semicolons outside quotes and drops -- comments.
func splitStatements(sql string) ([]string, error) {
	var (
		stmts []string
		cur   strings.Builder
		quote byte
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case quote != 0:
			cur.WriteByte(c)
			if c == '\\' && i+1 < len(sql) {
				i++
				cur.WriteByte(sql[i])
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
			cur.WriteByte(c)
		case c == '-' && strings.HasPrefix(sql[i:], "--"):
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			cur.WriteByte('\n')
		case c == ';':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	if quote != 0 {
		return nil, errUnterminatedQuote
	}
	flush()
	return stmts, nil
}
