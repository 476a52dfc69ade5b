// Package main runs a single-process localnet: the ledger with the settlement
// program installed, its JSON-RPC and websocket endpoint, and the log indexer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"solana-escrow-lab/internal/config"
	"solana-escrow-lab/internal/indexer"
	"solana-escrow-lab/internal/node"
	"solana-escrow-lab/internal/observability"
	"solana-escrow-lab/internal/solana"
	"solana-escrow-lab/internal/storage"
	chstore "solana-escrow-lab/internal/storage/clickhouse"
	"solana-escrow-lab/internal/storage/memory"
	"solana-escrow-lab/internal/storage/migrations"
	pgstore "solana-escrow-lab/internal/storage/postgres"
)

const shutdownTimeout = 30 * time.Second

// stores holds the indexer storage.
type stores struct {
	offers     storage.OfferStore
	executions storage.ExecutionStore
	analytics  storage.ExecutionStore // nil without ClickHouse
	progress   storage.ProgressStore
}

func main() {
	configPath := flag.String("config", os.Getenv("ESCROW_CONFIG"), "TOML config file")
	envFile := flag.String("env-file", ".env", "KEY=VALUE file loaded into the environment")
	rpcAddr := flag.String("rpc-addr", "", "JSON-RPC and websocket listen address")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus listen address (empty disables)")
	backend := flag.String("storage", "", "indexer storage backend: memory or postgres")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string for the analytics copy")
	slotInterval := flag.Duration("slot-interval", 0, "advance the slot on this interval when idle")
	noIndexer := flag.Bool("no-indexer", false, "do not run the log indexer")
	logLevel := flag.String("log-level", "", "log level")
	flag.Parse()

	cfg, err := loadConfig(*envFile, *configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Flags given explicitly win over file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "rpc-addr":
			cfg.Node.RPCAddr = *rpcAddr
		case "metrics-addr":
			cfg.Node.MetricsAddr = *metricsAddr
		case "storage":
			cfg.Storage.Backend = *backend
		case "postgres-dsn":
			cfg.Storage.PostgresDSN = *postgresDSN
		case "clickhouse-dsn":
			cfg.Storage.ClickhouseDSN = *clickhouseDSN
		case "slot-interval":
			cfg.Node.SlotInterval = *slotInterval
		case "no-indexer":
			cfg.Node.Indexer = !*noIndexer
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := observability.NewLogger("localnet", observability.LogOptions{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()

		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(shutdownTimeout):
			logger.Error().Dur("timeout", shutdownTimeout).Msg("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, logger)
	close(done)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("localnet failed")
	}
	logger.Info().Msg("shutdown complete")
}

func loadConfig(envFile, path string) (config.Config, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	metrics := observability.NewMetrics("escrow_lab", nil)

	n, err := node.New(
		node.WithAirdropLimit(cfg.Node.AirdropLimit),
		node.WithSlotInterval(cfg.Node.SlotInterval),
		node.WithMetrics(metrics),
		node.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	listener, err := net.Listen("tcp", cfg.Node.RPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Node.RPCAddr, err)
	}
	rpcServer := &http.Server{
		Handler:           node.NewServer(n, node.WithServerMetrics(metrics), node.WithServerLogger(logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 4)
	go func() {
		logger.Info().Str("addr", listener.Addr().String()).Msg("rpc listening")
		if err := rpcServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("rpc server: %w", err)
		}
	}()

	var metricsServer *http.Server
	if cfg.Node.MetricsAddr != "" {
		metricsServer = startMetricsServer(cfg.Node.MetricsAddr, metrics, logger, errCh)
	}

	go func() {
		if err := n.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("node: %w", err)
		}
	}()

	if cfg.Node.Indexer {
		st, cleanup, err := createStores(ctx, cfg.Storage, metrics, logger)
		if err != nil {
			shutdown(rpcServer, metricsServer, logger)
			return err
		}
		defer cleanup()

		go func() {
			if err := runIndexer(ctx, listener.Addr().String(), st, metrics, logger); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("indexer: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-errCh:
	}
	shutdown(rpcServer, metricsServer, logger)
	return err
}

func startMetricsServer(addr string, metrics *observability.Metrics, logger zerolog.Logger, errCh chan<- error) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	return srv
}

func shutdown(rpc, metrics *http.Server, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range []*http.Server{rpc, metrics} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("http shutdown")
		}
	}
}

// runIndexer points an indexer at the node's own endpoint.
func runIndexer(ctx context.Context, addr string, st *stores, metrics *observability.Metrics, logger zerolog.Logger) error {
	rpc := solana.NewHTTPClient("http://"+addr, solana.WithLogger(logger))
	ws, err := solana.NewWSClient(ctx, "ws://"+addr, nil)
	if err != nil {
		return fmt.Errorf("connect websocket: %w", err)
	}
	defer ws.Close()

	ix, err := indexer.New(indexer.Options{
		RPC:        rpc,
		WS:         ws,
		Offers:     st.offers,
		Executions: st.executions,
		Analytics:  st.analytics,
		Progress:   st.progress,
		Metrics:    metrics,
		Logger:     &logger,
	})
	if err != nil {
		return err
	}
	return ix.Run(ctx)
}

// createStores opens the configured backend and applies migrations.
func createStores(ctx context.Context, cfg config.StorageConfig, metrics *observability.Metrics, logger zerolog.Logger) (*stores, func(), error) {
	var (
		st      *stores
		closers []func()
		db      string
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Backend {
	case config.StoragePostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		applied, err := migrations.ApplyPostgres(ctx, pool)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.Info().Strs("versions", applied).Msg("postgres migrations applied")
		}
		db = "postgres"
		st = &stores{
			offers:     pgstore.NewOfferStore(pool),
			executions: pgstore.NewExecutionStore(pool),
			progress:   pgstore.NewProgressStore(pool),
		}
	default:
		db = "memory"
		st = &stores{
			offers:     memory.NewOfferStore(),
			executions: memory.NewExecutionStore(),
			progress:   memory.NewProgressStore(),
		}
	}
	st.offers = storage.InstrumentOffers(st.offers, metrics, db)
	st.executions = storage.InstrumentExecutions(st.executions, metrics, db)

	if cfg.ClickhouseDSN != "" {
		conn, err := openClickhouse(ctx, cfg.ClickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = conn.Close() })
		st.analytics = storage.InstrumentExecutions(chstore.NewExecutionStore(conn), metrics, "clickhouse")
	}

	return st, cleanup, nil
}

// openClickhouse creates the analytics database if needed, connects and
// applies the schema.
func openClickhouse(ctx context.Context, dsn string) (*chstore.Conn, error) {
	if err := chstore.EnsureDatabase(ctx, dsn); err != nil {
		return nil, fmt.Errorf("clickhouse: %w", err)
	}
	conn, err := chstore.NewConn(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: %w", err)
	}
	if err := migrations.ApplyClickhouse(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	return conn, nil
}
