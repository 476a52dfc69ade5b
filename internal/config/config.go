// Package config loads the TOML configuration shared by localnet and escrowctl.
// Precedence, lowest first: defaults, TOML file, environment, command-line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config is the runtime configuration.
type Config struct {
	Node    NodeConfig
	Storage StorageConfig
	Log     LogConfig
	Client  ClientConfig
}

// NodeConfig configures the localnet node.
type NodeConfig struct {
	RPCAddr      string        // JSON-RPC and websocket listen address
	MetricsAddr  string        // Prometheus listen address; empty disables
	AirdropLimit uint64        // max lamports per requestAirdrop
	SlotInterval time.Duration // idle slot advance; zero advances per transaction only
	Indexer      bool          // run the log indexer in-process
}

// StorageConfig selects the indexer stores.
type StorageConfig struct {
	Backend       string
	PostgresDSN   string
	ClickhouseDSN string // optional analytics copy of executions
}

// LogConfig configures the zerolog logger.
type LogConfig struct {
	Level  string
	Format string
}

// ClientConfig configures escrowctl.
type ClientConfig struct {
	RPCURL  string
	WSURL   string
	Keypair string // path to a base58 or JSON-array ed25519 private key
	Timeout time.Duration
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Node: NodeConfig{
			RPCAddr:      "127.0.0.1:8899",
			MetricsAddr:  ":9090",
			AirdropLimit: 100_000_000_000,
			Indexer:      true,
		},
		Storage: StorageConfig{Backend: StorageMemory},
		Log:     LogConfig{Level: "info", Format: "console"},
		Client: ClientConfig{
			RPCURL:  "http://127.0.0.1:8899",
			WSURL:   "ws://127.0.0.1:8899",
			Timeout: 30 * time.Second,
		},
	}
}

// fileConfig is the config.toml key mapping.
type fileConfig struct {
	Node struct {
		RPCAddr      string `toml:"rpc_addr"`
		MetricsAddr  string `toml:"metrics_addr"`
		AirdropLimit uint64 `toml:"airdrop_limit"`
		SlotInterval string `toml:"slot_interval"`
		Indexer      bool   `toml:"indexer"`
	} `toml:"node"`
	Storage struct {
		Backend       string `toml:"backend"`
		PostgresDSN   string `toml:"postgres_dsn"`
		ClickhouseDSN string `toml:"clickhouse_dsn"`
	} `toml:"storage"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
	Client struct {
		RPCURL  string `toml:"rpc_url"`
		WSURL   string `toml:"ws_url"`
		Keypair string `toml:"keypair"`
		Timeout string `toml:"timeout"`
	} `toml:"client"`
}

// Load overlays the TOML file at path on the defaults. An empty path returns the defaults.
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("node", "rpc_addr") {
		cfg.Node.RPCAddr = strings.TrimSpace(raw.Node.RPCAddr)
	}
	if meta.IsDefined("node", "metrics_addr") {
		cfg.Node.MetricsAddr = strings.TrimSpace(raw.Node.MetricsAddr)
	}
	if meta.IsDefined("node", "airdrop_limit") {
		cfg.Node.AirdropLimit = raw.Node.AirdropLimit
	}
	if meta.IsDefined("node", "slot_interval") {
		d, err := time.ParseDuration(raw.Node.SlotInterval)
		if err != nil {
			return Config{}, fmt.Errorf("load config: node.slot_interval: %w", err)
		}
		cfg.Node.SlotInterval = d
	}
	if meta.IsDefined("node", "indexer") {
		cfg.Node.Indexer = raw.Node.Indexer
	}
	if meta.IsDefined("storage", "backend") {
		cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(raw.Storage.Backend))
	}
	if meta.IsDefined("storage", "postgres_dsn") {
		cfg.Storage.PostgresDSN = strings.TrimSpace(raw.Storage.PostgresDSN)
	}
	if meta.IsDefined("storage", "clickhouse_dsn") {
		cfg.Storage.ClickhouseDSN = strings.TrimSpace(raw.Storage.ClickhouseDSN)
	}
	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "format") {
		cfg.Log.Format = strings.TrimSpace(raw.Log.Format)
	}
	if meta.IsDefined("client", "rpc_url") {
		cfg.Client.RPCURL = strings.TrimSpace(raw.Client.RPCURL)
	}
	if meta.IsDefined("client", "ws_url") {
		cfg.Client.WSURL = strings.TrimSpace(raw.Client.WSURL)
	}
	if meta.IsDefined("client", "keypair") {
		cfg.Client.Keypair = strings.TrimSpace(raw.Client.Keypair)
	}
	if meta.IsDefined("client", "timeout") {
		d, err := time.ParseDuration(raw.Client.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("load config: client.timeout: %w", err)
		}
		cfg.Client.Timeout = d
	}

	return cfg, nil
}

// Environment variables read by ApplyEnv.
const (
	EnvRPCAddr       = "ESCROW_RPC_ADDR"
	EnvMetricsAddr   = "ESCROW_METRICS_ADDR"
	EnvAirdropLimit  = "ESCROW_AIRDROP_LIMIT"
	EnvStorage       = "ESCROW_STORAGE"
	EnvPostgresDSN   = "POSTGRES_DSN"
	EnvClickhouseDSN = "CLICKHOUSE_DSN"
	EnvLogLevel      = "LOG_LEVEL"
	EnvLogFormat     = "LOG_FORMAT"
	EnvRPCURL        = "ESCROW_RPC_URL"
	EnvWSURL         = "ESCROW_WS_URL"
	EnvKeypair       = "ESCROW_KEYPAIR"
)

// ApplyEnv overrides fields from non-empty environment variables.
// lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvRPCAddr); ok {
		c.Node.RPCAddr = v
	}
	if v, ok := get(EnvMetricsAddr); ok {
		c.Node.MetricsAddr = v
	}
	if v, ok := get(EnvAirdropLimit); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAirdropLimit, err)
		}
		c.Node.AirdropLimit = n
	}
	if v, ok := get(EnvStorage); ok {
		c.Storage.Backend = strings.ToLower(v)
	}
	if v, ok := get(EnvPostgresDSN); ok {
		c.Storage.PostgresDSN = v
	}
	if v, ok := get(EnvClickhouseDSN); ok {
		c.Storage.ClickhouseDSN = v
	}
	if v, ok := get(EnvLogLevel); ok {
		c.Log.Level = v
	}
	if v, ok := get(EnvLogFormat); ok {
		c.Log.Format = v
	}
	if v, ok := get(EnvRPCURL); ok {
		c.Client.RPCURL = v
	}
	if v, ok := get(EnvWSURL); ok {
		c.Client.WSURL = v
	}
	if v, ok := get(EnvKeypair); ok {
		c.Client.Keypair = v
	}
	return nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error

	if c.Node.RPCAddr == "" {
		errs = append(errs, errors.New("node.rpc_addr is required"))
	}
	if c.Node.SlotInterval < 0 {
		errs = append(errs, errors.New("node.slot_interval must not be negative"))
	}
	switch c.Storage.Backend {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q (expected memory or postgres)", c.Storage.Backend))
	}
	if c.Storage.ClickhouseDSN != "" && !strings.HasPrefix(c.Storage.ClickhouseDSN, "clickhouse://") {
		errs = append(errs, errors.New("storage.clickhouse_dsn must use the clickhouse:// scheme"))
	}
	for name, raw := range map[string]string{"client.rpc_url": c.Client.RPCURL, "client.ws_url": c.Client.WSURL} {
		if u, err := url.Parse(raw); err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s %q is not an absolute URL", name, raw))
		}
	}
	if c.Client.Timeout <= 0 {
		errs = append(errs, errors.New("client.timeout must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// LoadEnvFile sets variables from a KEY=VALUE file without overriding the
// existing environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read env file: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"`)

		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("set %s: %w", key, err)
			}
		}
	}
	return nil
}
