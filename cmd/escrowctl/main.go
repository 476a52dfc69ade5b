// Package main provides escrowctl, a command-line client that builds, signs
// and submits settlement program transactions to a localnet node.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"solana-escrow-lab/internal/client"
	"solana-escrow-lab/internal/config"
	"solana-escrow-lab/internal/observability"
	"solana-escrow-lab/internal/solana"
)

// env is what every subcommand runs against.
type env struct {
	cfg     config.Config
	client  *client.Client
	keypair *solana.Keypair // nil until a command asks for it
	out     io.Writer
	logger  zerolog.Logger
}

// signer loads the configured keypair on first use.
func (e *env) signer() (*solana.Keypair, error) {
	if e.keypair != nil {
		return e.keypair, nil
	}
	if e.cfg.Client.Keypair == "" {
		return nil, errors.New("no keypair: pass -keypair or set " + config.EnvKeypair)
	}
	kp, err := solana.LoadKeypair(e.cfg.Client.Keypair)
	if err != nil {
		return nil, err
	}
	e.keypair = kp
	return kp, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.LookupEnv)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "escrowctl:", err)
		if errors.Is(err, flag.ErrHelp) || errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

// run parses global flags, then dispatches args[0] to its subcommand.
func run(ctx context.Context, args []string, out io.Writer, lookup func(string) (string, bool)) error {
	global := flag.NewFlagSet("escrowctl", flag.ContinueOnError)
	global.SetOutput(out)
	configPath := global.String("config", "", "TOML config file")
	envFile := global.String("env-file", ".env", "KEY=VALUE file loaded into the environment")
	rpcURL := global.String("rpc-url", "", "node JSON-RPC URL")
	keypairPath := global.String("keypair", "", "signer keypair file")
	timeout := global.Duration("timeout", 0, "per-command timeout")
	logLevel := global.String("log-level", "", "log level")
	global.Usage = func() { usage(global) }
	if err := global.Parse(args); err != nil {
		return err
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
	global.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "rpc-url":
			cfg.Client.RPCURL = *rpcURL
		case "keypair":
			cfg.Client.Keypair = *keypairPath
		case "timeout":
			cfg.Client.Timeout = *timeout
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	rest := global.Args()
	if len(rest) == 0 {
		usage(global)
		return fmt.Errorf("%w: missing command", errUsage)
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		usage(global)
		return fmt.Errorf("%w: unknown command %q", errUsage, rest[0])
	}

	logger, err := observability.NewLogger("escrowctl", observability.LogOptions{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Out:    os.Stderr,
	})
	if err != nil {
		return err
	}

	rpc := solana.NewHTTPClient(cfg.Client.RPCURL,
		solana.WithTimeout(cfg.Client.Timeout),
		solana.WithLogger(logger))
	e := &env{
		cfg:    cfg,
		client: client.New(rpc, client.WithLogger(logger)),
		out:    out,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Client.Timeout)
	defer cancel()

	fs := flag.NewFlagSet(rest[0], flag.ContinueOnError)
	fs.SetOutput(out)
	return cmd.run(ctx, e, fs, rest[1:])
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintln(w, "usage: escrowctl [global flags] <command> [flags]")
	fmt.Fprintln(w, "\ncommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-15s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w, "\nglobal flags:")
	fs.PrintDefaults()
}

// splitList parses a comma-separated flag value.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
