// Batch sender CLI.
// Dispatches one signed transfer per funded account to a single recipient.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gateway-fm/batchsender/internal/account"
	"github.com/gateway-fm/batchsender/internal/config"
	"github.com/gateway-fm/batchsender/internal/dispatch"
	"github.com/gateway-fm/batchsender/internal/keyfile"
	"github.com/gateway-fm/batchsender/internal/metrics"
	"github.com/gateway-fm/batchsender/internal/rpc"
	"github.com/gateway-fm/batchsender/internal/storage"
	"github.com/gateway-fm/batchsender/internal/txbuilder"
	"github.com/gateway-fm/batchsender/pkg/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := setupLogger()
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clientCfg := rpc.DefaultClientConfig(cfg.RPCURL)
	clientCfg.Timeout = 10 * time.Second
	clientCfg.Logger = logger
	client := rpc.NewHTTPClient(clientCfg)

	// Connectivity probe; also guards against pointing at the wrong chain.
	chainID, err := client.ChainID(ctx)
	if err != nil {
		logger.Error("chain gateway unreachable", slog.String("url", cfg.RPCURL), slog.String("error", err.Error()))
		return 1
	}
	if chainID != uint64(cfg.ChainID) {
		logger.Error("chain ID mismatch",
			slog.Int64("configured", cfg.ChainID),
			slog.Uint64("reported", chainID),
		)
		return 1
	}

	rawKeys, err := keyfile.Load(cfg.KeyFilePath)
	if err != nil {
		logger.Error("failed to load key file", slog.String("path", cfg.KeyFilePath), slog.String("error", err.Error()))
		return 1
	}
	if len(rawKeys) == 0 {
		logger.Error("key file contains no keys", slog.String("path", cfg.KeyFilePath))
		return 1
	}
	logger.Info("loaded keys", slog.Int("count", len(rawKeys)), slog.String("path", cfg.KeyFilePath))

	var recorder metrics.Recorder
	if cfg.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		recorder = metrics.NewPrometheusMetrics(registry)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			logger.Info("metrics listening", slog.String("addr", cfg.MetricsAddr))
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	var store storage.Storage
	if cfg.DatabasePath != "" {
		sqlStore, err := storage.NewSQLiteStorage(cfg.DatabasePath)
		if err != nil {
			logger.Error("failed to open dispatch journal", slog.String("path", cfg.DatabasePath), slog.String("error", err.Error()))
			return 1
		}
		defer sqlStore.Close()
		store = sqlStore
		logger.Info("dispatch journal enabled", slog.String("path", cfg.DatabasePath))
	}

	var heads *rpc.HeadWatcher
	if cfg.WSURL != "" {
		heads = rpc.NewHeadWatcher(cfg.WSURL, logger)
		go heads.Run(ctx)
	}

	decimals := 18
	if cfg.Mode == types.ModeToken {
		decimals = cfg.TokenDecimals
	}
	amount, err := txbuilder.ParseUnits(cfg.Amount, decimals)
	if err != nil {
		logger.Error("invalid amount", slog.String("amount", cfg.Amount), slog.String("error", err.Error()))
		return 1
	}

	recipient := common.HexToAddress(cfg.Recipient)
	var builder txbuilder.Builder
	switch cfg.Mode {
	case types.ModeToken:
		builder = txbuilder.NewTokenTransferBuilder(common.HexToAddress(cfg.TokenContract), recipient, amount)
	default:
		builder = txbuilder.NewNativeTransferBuilder(recipient, amount, cfg.DataTemplate)
	}

	gwei := big.NewInt(1_000_000_000)
	dispatcher := dispatch.NewDispatcher(dispatch.DispatcherConfig{
		Client:         client,
		Builder:        builder,
		ChainID:        big.NewInt(cfg.ChainID),
		GasLimit:       cfg.GasLimit,
		GasTipCap:      new(big.Int).Mul(big.NewInt(cfg.PriorityFeeGwei), gwei),
		GasFeeCap:      new(big.Int).Mul(big.NewInt(cfg.MaxFeeGwei), gwei),
		UseLegacy:      cfg.UseLegacy,
		MaxAttempts:    cfg.MaxAttempts,
		Backoff:        dispatch.Backoff{Kind: cfg.Backoff, Base: cfg.BackoffDelay},
		ReceiptTimeout: cfg.ReceiptTimeout,
		PollInterval:   cfg.PollInterval,
		Heads:          heads,
		Metrics:        recorder,
		Logger:         logger,
	})

	confirm := dispatch.AutoConfirm
	if !cfg.AutoConfirm {
		confirm = promptConfirm(cfg)
	}

	orch := dispatch.NewOrchestrator(dispatch.OrchestratorConfig{
		Initializer: account.NewInitializer(account.InitializerConfig{
			Client:        client,
			Workers:       cfg.Workers,
			Mode:          cfg.Mode,
			TokenContract: common.HexToAddress(cfg.TokenContract),
			Logger:        logger,
		}),
		Dispatcher:     dispatcher,
		Confirm:        confirm,
		Mode:           cfg.Mode,
		Recipient:      recipient.Hex(),
		TokenDecimals:  cfg.TokenDecimals,
		Shuffle:        cfg.ShuffleOrder,
		JitterMin:      cfg.JitterMin,
		JitterMax:      cfg.JitterMax,
		JitterFallback: config.DefaultJitterFallback,
		Store:          store,
		Metrics:        recorder,
		Logger:         logger,
	})

	summary, _, err := orch.Run(ctx, rawKeys)
	switch {
	case errors.Is(err, dispatch.ErrConfirmationDeclined):
		logger.Info("dispatch cancelled")
		return 1
	case errors.Is(err, dispatch.ErrNoAccounts):
		logger.Error("no accounts could be initialized",
			slog.Int("keys", summary.KeysLoaded),
			slog.Int("rejected", summary.KeysRejected),
		)
		return 1
	case err != nil:
		logger.Error("batch failed", slog.String("error", err.Error()))
		return 1
	}

	// Per-account failures are reported in the summary, not the exit code:
	// the run completed and the journal has the details.
	return 0
}

// promptConfirm builds the interactive confirmation gate. It prints the
// dispatch plan and reads a y/N answer from stdin.
func promptConfirm(cfg *config.Config) dispatch.ConfirmFunc {
	return func(accounts []*account.Account) bool {
		what := cfg.Amount + " native units"
		if cfg.Mode == types.ModeToken {
			what = cfg.Amount + " tokens via " + cfg.TokenContract
		}
		fmt.Printf("Dispatch %s from %d account(s) to %s? [y/N] ", what, len(accounts), cfg.Recipient)

		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}

func setupLogger() *slog.Logger {
	var level slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
