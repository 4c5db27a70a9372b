// Package config handles configuration loading and validation.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/batchsender/pkg/types"
)

// Config holds batch sender configuration. It is built once at startup and
// never mutated afterwards; every component receives it read-only.
type Config struct {
	RPCURL  string
	WSURL   string // optional newHeads subscription endpoint
	ChainID int64

	KeyFilePath string
	Recipient   string

	Mode          types.TransferMode
	TokenContract string
	TokenDecimals int
	Amount        string // decimal string, converted to base units per mode
	DataTemplate  string // native transfers only; "{address}" is substituted

	UseLegacy       bool  // legacy (type 0) pricing instead of EIP-1559
	MaxFeeGwei      int64 // fee cap (or gas price in legacy mode)
	PriorityFeeGwei int64
	GasLimit        uint64 // 0 = estimate via eth_estimateGas

	Workers        int // initializer worker pool size
	MaxAttempts    int // dispatch attempts per account
	Backoff        types.BackoffKind
	BackoffDelay   time.Duration
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
	JitterMin      time.Duration
	JitterMax      time.Duration
	ShuffleOrder   bool
	AutoConfirm    bool // skip the interactive gate between init and dispatch

	DatabasePath string // "" = no result journal
	MetricsAddr  string // "" = no /metrics endpoint
}

// Defaults
const (
	DefaultChainID        = 1
	DefaultKeyFilePath    = "./keys.txt"
	DefaultTokenDecimals  = 18
	DefaultAmount         = "0"
	DefaultMaxFeeGwei     = 30
	DefaultPriorityGwei   = 1
	DefaultWorkers        = 4
	DefaultMaxAttempts    = 3
	DefaultBackoffDelay   = 3 * time.Second
	DefaultReceiptTimeout = 2 * time.Minute
	DefaultPollInterval   = 2 * time.Second
	DefaultJitterFallback = 500 * time.Millisecond
)

// Load reads configuration from environment variables and command-line flags.
// Command-line flags take precedence over environment variables.
func Load() (*Config, error) {
	return load(flag.NewFlagSet(os.Args[0], flag.ExitOnError), os.Args[1:], os.Getenv)
}

func load(fs *flag.FlagSet, args []string, getenv func(string) string) (*Config, error) {
	cfg := &Config{
		ChainID:         DefaultChainID,
		KeyFilePath:     DefaultKeyFilePath,
		Mode:            types.ModeNative,
		TokenDecimals:   DefaultTokenDecimals,
		Amount:          DefaultAmount,
		MaxFeeGwei:      DefaultMaxFeeGwei,
		PriorityFeeGwei: DefaultPriorityGwei,
		Workers:         DefaultWorkers,
		MaxAttempts:     DefaultMaxAttempts,
		Backoff:         types.BackoffFixed,
		BackoffDelay:    DefaultBackoffDelay,
		ReceiptTimeout:  DefaultReceiptTimeout,
		PollInterval:    DefaultPollInterval,
	}

	// Environment variables first
	if v := getenv("RPC_URL"); v != "" {
		cfg.RPCURL = v
	}
	if v := getenv("WS_URL"); v != "" {
		cfg.WSURL = v
	}
	if v := getenv("CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			cfg.ChainID = id
		}
	}
	if v := getenv("KEY_FILE"); v != "" {
		cfg.KeyFilePath = v
	}
	if v := getenv("RECIPIENT"); v != "" {
		cfg.Recipient = v
	}
	if v := getenv("TOKEN_CONTRACT"); v != "" {
		cfg.TokenContract = v
	}
	if v := getenv("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}

	// Command-line flags
	var (
		rpcURL      = fs.String("rpc", cfg.RPCURL, "Chain gateway JSON-RPC URL")
		wsURL       = fs.String("ws", cfg.WSURL, "Optional WebSocket URL for newHeads wakeups")
		chainID     = fs.Int64("chainid", cfg.ChainID, "Chain ID")
		keyFile     = fs.String("keys", cfg.KeyFilePath, "Path to private key file (one hex key per line)")
		recipient   = fs.String("to", cfg.Recipient, "Destination address")
		mode        = fs.String("mode", string(cfg.Mode), "Transfer mode: native or token")
		tokenAddr   = fs.String("token", cfg.TokenContract, "Token contract address (token mode)")
		decimals    = fs.Int("decimals", cfg.TokenDecimals, "Token decimals (token mode)")
		amount      = fs.String("amount", cfg.Amount, "Amount to send per account (decimal)")
		dataTmpl    = fs.String("data", cfg.DataTemplate, "Data template for native transfers; {address} is replaced with the sender address")
		useLegacy   = fs.Bool("legacy", cfg.UseLegacy, "Use legacy (type 0) transactions instead of EIP-1559")
		maxFee      = fs.Int64("maxfee", cfg.MaxFeeGwei, "Max fee per gas in gwei (gas price in legacy mode)")
		priorityFee = fs.Int64("priorityfee", cfg.PriorityFeeGwei, "Max priority fee per gas in gwei")
		gasLimit    = fs.Uint64("gaslimit", cfg.GasLimit, "Gas limit (0 = estimate)")
		workers     = fs.Int("workers", cfg.Workers, "Account initializer worker count")
		attempts    = fs.Int("attempts", cfg.MaxAttempts, "Dispatch attempts per account")
		backoff     = fs.String("backoff", string(cfg.Backoff), "Retry backoff policy: fixed, exponential, jittered")
		backoffDur  = fs.Duration("backoff-delay", cfg.BackoffDelay, "Base retry delay between attempts")
		rcptTimeout = fs.Duration("receipt-timeout", cfg.ReceiptTimeout, "Receipt polling window per attempt")
		pollEvery   = fs.Duration("poll-interval", cfg.PollInterval, "Receipt polling interval")
		jitterMin   = fs.Duration("jitter-min", cfg.JitterMin, "Minimum launch stagger between dispatchers")
		jitterMax   = fs.Duration("jitter-max", cfg.JitterMax, "Maximum launch stagger between dispatchers")
		shuffle     = fs.Bool("shuffle", cfg.ShuffleOrder, "Randomize account dispatch order")
		yes         = fs.Bool("yes", cfg.AutoConfirm, "Skip the confirmation prompt before dispatch")
		dbPath      = fs.String("db", cfg.DatabasePath, "SQLite path for the dispatch journal (empty = disabled)")
		metricsAddr = fs.String("metrics", cfg.MetricsAddr, "Prometheus /metrics listen address (empty = disabled)")
	)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.RPCURL = *rpcURL
	cfg.WSURL = *wsURL
	cfg.ChainID = *chainID
	cfg.KeyFilePath = *keyFile
	cfg.Recipient = *recipient
	cfg.Mode = types.TransferMode(strings.ToLower(*mode))
	cfg.TokenContract = *tokenAddr
	cfg.TokenDecimals = *decimals
	cfg.Amount = *amount
	cfg.DataTemplate = *dataTmpl
	cfg.UseLegacy = *useLegacy
	cfg.MaxFeeGwei = *maxFee
	cfg.PriorityFeeGwei = *priorityFee
	cfg.GasLimit = *gasLimit
	cfg.Workers = *workers
	cfg.MaxAttempts = *attempts
	cfg.Backoff = types.BackoffKind(strings.ToLower(*backoff))
	cfg.BackoffDelay = *backoffDur
	cfg.ReceiptTimeout = *rcptTimeout
	cfg.PollInterval = *pollEvery
	cfg.JitterMin = *jitterMin
	cfg.JitterMax = *jitterMax
	cfg.ShuffleOrder = *shuffle
	cfg.AutoConfirm = *yes
	cfg.DatabasePath = *dbPath
	cfg.MetricsAddr = *metricsAddr

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC URL is required")
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("chain ID must be positive")
	}
	if c.KeyFilePath == "" {
		return fmt.Errorf("key file path is required")
	}
	if !common.IsHexAddress(c.Recipient) {
		return fmt.Errorf("recipient is not a valid address: %q", c.Recipient)
	}
	switch c.Mode {
	case types.ModeNative:
	case types.ModeToken:
		if !common.IsHexAddress(c.TokenContract) {
			return fmt.Errorf("token contract is not a valid address: %q", c.TokenContract)
		}
		if c.TokenDecimals < 0 || c.TokenDecimals > 77 {
			return fmt.Errorf("token decimals out of range: %d", c.TokenDecimals)
		}
	default:
		return fmt.Errorf("invalid mode: %s (supported: native, token)", c.Mode)
	}
	if c.MaxFeeGwei <= 0 {
		return fmt.Errorf("max fee must be positive")
	}
	if c.PriorityFeeGwei < 0 {
		return fmt.Errorf("priority fee cannot be negative")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("worker count must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("attempt count must be positive")
	}
	switch c.Backoff {
	case types.BackoffFixed, types.BackoffExponential, types.BackoffJittered:
	default:
		return fmt.Errorf("invalid backoff policy: %s", c.Backoff)
	}
	if c.BackoffDelay <= 0 {
		return fmt.Errorf("backoff delay must be positive")
	}
	if c.ReceiptTimeout <= 0 {
		return fmt.Errorf("receipt timeout must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.JitterMin < 0 || c.JitterMax < 0 {
		return fmt.Errorf("jitter bounds cannot be negative")
	}
	if c.JitterMax > 0 && c.JitterMin > c.JitterMax {
		return fmt.Errorf("jitter-min exceeds jitter-max")
	}
	return nil
}
