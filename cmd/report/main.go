// Package main renders an escrow activity report from the indexer's
// PostgreSQL stores.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"solana-escrow-lab/internal/config"
	"solana-escrow-lab/internal/observability"
	"solana-escrow-lab/internal/reporting"
	"solana-escrow-lab/internal/storage"
	pgstore "solana-escrow-lab/internal/storage/postgres"
)

// Output formats.
const (
	formatMarkdown = "markdown"
	formatCSV      = "csv"
)

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.LookupEnv)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "report:", err)
		if errors.Is(err, flag.ErrHelp) || errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer, lookup func(string) (string, bool)) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(out)
	configPath := fs.String("config", "", "TOML config file")
	envFile := fs.String("env-file", ".env", "KEY=VALUE file loaded into the environment")
	postgresDSN := fs.String("postgres-dsn", "", "PostgreSQL connection string")
	fromSlot := fs.Int64("from-slot", 0, "first slot to report on")
	toSlot := fs.Int64("to-slot", -1, "last slot to report on; -1 uses the indexer cursor")
	format := fs.String("format", formatMarkdown, "output format: markdown or csv")
	outPath := fs.String("out", "", "output file (default stdout)")
	logLevel := fs.String("log-level", "", "log level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *format != formatMarkdown && *format != formatCSV {
		return fmt.Errorf("%w: -format %q (expected markdown or csv)", errUsage, *format)
	}

	if err := config.LoadEnvFile(*envFile); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return err
	}
	if *postgresDSN != "" {
		cfg.Storage.PostgresDSN = *postgresDSN
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if cfg.Storage.PostgresDSN == "" {
		return fmt.Errorf("%w: -postgres-dsn or %s is required", errUsage, config.EnvPostgresDSN)
	}

	logger, err := observability.NewLogger("report", observability.LogOptions{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Out:    os.Stderr,
	})
	if err != nil {
		return err
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	from, to, err := slotRange(ctx, pgstore.NewProgressStore(pool), *fromSlot, *toSlot)
	if err != nil {
		return err
	}
	logger.Info().Int64("from_slot", from).Int64("to_slot", to).Msg("generating report")

	gen := reporting.NewGenerator(pgstore.NewOfferStore(pool), pgstore.NewExecutionStore(pool))
	text, err := render(ctx, gen, from, to, *format)
	if err != nil {
		return err
	}

	if *outPath == "" {
		_, err = io.WriteString(out, text)
		return err
	}
	if err := os.WriteFile(*outPath, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	logger.Info().Str("path", *outPath).Msg("report written")
	return nil
}

// slotRange resolves a negative to-slot to the indexer cursor. With no
// cursor saved yet the range ends at from.
func slotRange(ctx context.Context, progress storage.ProgressStore, from, to int64) (int64, int64, error) {
	if to >= 0 {
		return from, to, nil
	}
	p, err := progress.GetLastProcessed(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return from, from, nil
	case err != nil:
		return 0, 0, fmt.Errorf("read indexer cursor: %w", err)
	}
	return from, max(p.Slot, from), nil
}

func render(ctx context.Context, gen *reporting.Generator, from, to int64, format string) (string, error) {
	r, err := gen.Generate(ctx, from, to)
	if err != nil {
		return "", err
	}
	if format == formatCSV {
		return reporting.RenderCSV(r), nil
	}
	return reporting.RenderMarkdown(r), nil
}
