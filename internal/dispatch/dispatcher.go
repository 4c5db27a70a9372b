package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/batchsender/internal/account"
	"github.com/gateway-fm/batchsender/internal/metrics"
	"github.com/gateway-fm/batchsender/internal/rpc"
	"github.com/gateway-fm/batchsender/internal/txbuilder"
	"github.com/gateway-fm/batchsender/pkg/types"
)

// DispatcherConfig holds the shared dependencies for per-account dispatchers.
type DispatcherConfig struct {
	Client      rpc.Client
	Builder     txbuilder.Builder
	ChainID     *big.Int
	GasLimit    uint64 // 0 = estimate per attempt
	GasTipCap   *big.Int
	GasFeeCap   *big.Int
	UseLegacy   bool
	MaxAttempts int
	Backoff     Backoff

	ReceiptTimeout time.Duration
	PollInterval   time.Duration
	Heads          *rpc.HeadWatcher // optional
	Metrics        metrics.Recorder // optional
	Logger         *slog.Logger
}

// Dispatcher signs, submits, and tracks one transaction per account.
// One Dispatcher value is shared across accounts but holds no per-account
// state: each Run call exclusively owns its account for the call's lifetime,
// so the account's nonce needs no synchronization beyond the Account itself.
type Dispatcher struct {
	cfg    DispatcherConfig
	signer ethtypes.Signer
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		cfg:    cfg,
		signer: ethtypes.LatestSignerForChainID(cfg.ChainID),
		logger: logger,
	}
}

// Run dispatches one transaction for the account, retrying up to the attempt
// ceiling. Confirmed and reverted both advance the nonce (the transaction was
// included); submission errors and receipt timeouts trigger a backoff wait,
// a nonce resync from chain, and a rebuild, so a late-landing transaction
// cannot be double-spent with a stale nonce.
func (d *Dispatcher) Run(ctx context.Context, acc *account.Account) types.DispatchResult {
	result := types.DispatchResult{
		Address: acc.Address.Hex(),
		Status:  types.StatusSubmitFailed,
	}

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		result.Attempts = attempt
		result.Nonce = acc.PeekNonce()

		txHash, err := d.submit(ctx, acc)
		if err != nil {
			result.Status = types.StatusSubmitFailed
			result.Error = err.Error()
			d.logger.Warn("submission failed",
				slog.String("address", result.Address),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			if !d.waitAndResync(ctx, acc, attempt) {
				break
			}
			continue
		}

		result.TxHash = txHash
		d.logger.Info("transaction submitted",
			slog.String("address", result.Address),
			slog.String("tx", txHash),
			slog.Uint64("nonce", result.Nonce),
			slog.Int("attempt", attempt),
		)

		tracked := d.track(ctx, txHash)
		if tracked.Status.ConsumedNonce() {
			acc.IncrementNonce()
			result.Status = tracked.Status
			result.BlockNumber = tracked.BlockNumber
			result.Error = ""
			result.FinishedAt = time.Now()
			d.record(result)
			return result
		}

		result.Status = types.StatusTimeout
		result.Error = fmt.Sprintf("no receipt within %s", d.cfg.ReceiptTimeout)
		d.logger.Warn("receipt window elapsed",
			slog.String("address", result.Address),
			slog.String("tx", txHash),
			slog.Int("attempt", attempt),
		)
		if !d.waitAndResync(ctx, acc, attempt) {
			break
		}
	}

	result.FinishedAt = time.Now()
	d.record(result)
	return result
}

// submit builds, signs, and sends one transaction at the account's current nonce.
func (d *Dispatcher) submit(ctx context.Context, acc *account.Account) (string, error) {
	gasLimit := d.cfg.GasLimit
	if gasLimit == 0 {
		est, err := d.cfg.Client.EstimateGas(ctx, d.cfg.Builder.EstimateMsg(acc.Address))
		if err != nil {
			return "", fmt.Errorf("estimate gas: %w", err)
		}
		gasLimit = est
	}

	tx, err := d.cfg.Builder.Build(txbuilder.TxParams{
		ChainID:   d.cfg.ChainID,
		Nonce:     acc.PeekNonce(),
		From:      acc.Address,
		GasLimit:  gasLimit,
		GasTipCap: d.cfg.GasTipCap,
		GasFeeCap: d.cfg.GasFeeCap,
		UseLegacy: d.cfg.UseLegacy,
	})
	if err != nil {
		return "", fmt.Errorf("build: %w", err)
	}

	signed, err := ethtypes.SignTx(tx, d.signer, acc.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}

	data, err := signed.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}

	start := time.Now()
	hash, err := d.cfg.Client.SendRawTransaction(ctx, data)
	if err != nil {
		return "", fmt.Errorf("send: %w", err)
	}
	if d.cfg.Metrics != nil {
		d.cfg.Metrics.ObserveSubmitLatency(time.Since(start).Seconds())
	}
	return hash, nil
}

// track hands the hash to a fresh receipt tracker and blocks on its outcome.
func (d *Dispatcher) track(ctx context.Context, txHash string) TrackResult {
	var heads <-chan uint64
	if d.cfg.Heads != nil {
		ch, cancel := d.cfg.Heads.Subscribe()
		defer cancel()
		heads = ch
	}

	tracker := NewReceiptTracker(d.cfg.Client, d.cfg.PollInterval, d.cfg.ReceiptTimeout, heads, d.logger)

	start := time.Now()
	tracked := tracker.Track(ctx, txHash)
	if d.cfg.Metrics != nil && tracked.Status != types.StatusTimeout {
		d.cfg.Metrics.ObserveConfirmLatency(time.Since(start).Seconds())
	}
	return tracked
}

// waitAndResync sleeps one backoff step and refreshes the account nonce from
// chain. Returns false when no further attempt should follow.
func (d *Dispatcher) waitAndResync(ctx context.Context, acc *account.Account, attempt int) bool {
	if attempt >= d.cfg.MaxAttempts {
		return false
	}

	select {
	case <-ctx.Done():
		return false
	case <-time.After(d.cfg.Backoff.Delay(attempt)):
	}

	// The previous transaction may still land; syncing from chain prevents
	// resubmitting a nonce that was silently consumed.
	if err := acc.Resync(ctx, d.cfg.Client); err != nil {
		d.logger.Warn("nonce resync failed",
			slog.String("address", acc.Address.Hex()),
			slog.String("error", err.Error()),
		)
	}
	return true
}

func (d *Dispatcher) record(result types.DispatchResult) {
	if d.cfg.Metrics != nil {
		d.cfg.Metrics.TxOutcome(string(result.Status))
		d.cfg.Metrics.ObserveAttempts(result.Attempts)
	}
}
