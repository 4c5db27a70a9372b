package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gateway-fm/batchsender/internal/account"
	"github.com/gateway-fm/batchsender/internal/metrics"
	"github.com/gateway-fm/batchsender/internal/storage"
	"github.com/gateway-fm/batchsender/internal/txbuilder"
	"github.com/gateway-fm/batchsender/pkg/types"
)

// ErrConfirmationDeclined indicates the operator declined the dispatch gate.
var ErrConfirmationDeclined = errors.New("dispatch declined by operator")

// ErrNoAccounts indicates no account survived initialization.
var ErrNoAccounts = errors.New("no accounts initialized")

// ConfirmFunc is the gate between the init and dispatch phases. It receives
// the initialized accounts (balances resolved) and returns whether to proceed.
// The CLI wires an interactive prompt here; tests wire an auto-approver.
type ConfirmFunc func(accounts []*account.Account) bool

// AutoConfirm approves the gate unconditionally.
func AutoConfirm([]*account.Account) bool { return true }

// OrchestratorConfig configures a batch run.
type OrchestratorConfig struct {
	Initializer *account.Initializer
	Dispatcher  *Dispatcher
	Confirm     ConfirmFunc

	Mode          types.TransferMode
	Recipient     string
	TokenDecimals int // display scaling for the balance summary

	Shuffle        bool
	JitterMin      time.Duration
	JitterMax      time.Duration
	JitterFallback time.Duration // used when no jitter bounds are configured

	Store   storage.Storage  // optional run journal
	Metrics metrics.Recorder // optional
	Logger  *slog.Logger
}

// Orchestrator drives the init and dispatch phases to completion.
type Orchestrator struct {
	cfg    OrchestratorConfig
	logger *slog.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Confirm == nil {
		cfg.Confirm = AutoConfirm
	}
	if cfg.JitterFallback <= 0 {
		cfg.JitterFallback = 500 * time.Millisecond
	}
	return &Orchestrator{cfg: cfg, logger: logger}
}

// Run executes the whole batch: initialize accounts in parallel, gate on
// operator confirmation, then launch one dispatcher per account with a
// jittered stagger and join them all. Per-account failures never abort
// sibling dispatchers; once launched, a batch runs to completion.
func (o *Orchestrator) Run(ctx context.Context, rawKeys []string) (*types.BatchSummary, []types.DispatchResult, error) {
	summary := &types.BatchSummary{
		RunID:      newRunID(),
		StartedAt:  time.Now(),
		Mode:       string(o.cfg.Mode),
		KeysLoaded: len(rawKeys),
	}

	// Init phase: fan out, join, aggregate.
	accounts, failures := o.cfg.Initializer.Run(ctx, rawKeys)
	summary.KeysRejected = len(failures)
	summary.Accounts = len(accounts)
	if o.cfg.Metrics != nil {
		for range accounts {
			o.cfg.Metrics.AccountInitialized()
		}
		for range failures {
			o.cfg.Metrics.KeyRejected()
		}
	}
	if len(accounts) == 0 {
		return summary, nil, ErrNoAccounts
	}

	pool := account.NewPool(accounts)
	if o.cfg.Shuffle {
		pool.Shuffle()
	}

	o.logBalanceSummary(pool.Accounts())

	if !o.cfg.Confirm(pool.Accounts()) {
		return summary, nil, ErrConfirmationDeclined
	}

	if o.cfg.Store != nil {
		run := &storage.Run{
			ID:           summary.RunID,
			StartedAt:    summary.StartedAt,
			Mode:         summary.Mode,
			Recipient:    o.cfg.Recipient,
			KeysLoaded:   summary.KeysLoaded,
			KeysRejected: summary.KeysRejected,
			Accounts:     summary.Accounts,
		}
		if err := o.cfg.Store.CreateRun(ctx, run); err != nil {
			o.logger.Warn("failed to journal run start", slog.String("error", err.Error()))
		}
	}

	// Dispatch phase: one dispatcher per account, staggered launches.
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []types.DispatchResult
	)

	for i, acc := range pool.Accounts() {
		wg.Add(1)
		go func(acc *account.Account) {
			defer wg.Done()
			result := o.cfg.Dispatcher.Run(ctx, acc)

			mu.Lock()
			results = append(results, result)
			o.reportResult(result)
			mu.Unlock()

			if o.cfg.Store != nil {
				if err := o.cfg.Store.RecordTx(ctx, summary.RunID, result); err != nil {
					o.logger.Warn("failed to journal tx outcome",
						slog.String("address", result.Address),
						slog.String("error", err.Error()),
					)
				}
			}
		}(acc)

		if i < pool.Len()-1 {
			time.Sleep(o.launchJitter())
		}
	}

	wg.Wait()

	summary.CompletedAt = time.Now()
	for _, r := range results {
		switch r.Status {
		case types.StatusConfirmed:
			summary.Confirmed++
		case types.StatusReverted:
			summary.Reverted++
		case types.StatusTimeout:
			summary.TimedOut++
		default:
			summary.Failed++
		}
	}

	if o.cfg.Store != nil {
		run := &storage.Run{
			Confirmed: summary.Confirmed,
			Reverted:  summary.Reverted,
			TimedOut:  summary.TimedOut,
			Failed:    summary.Failed,
			Status:    "completed",
		}
		completed := summary.CompletedAt
		run.CompletedAt = &completed
		if err := o.cfg.Store.CompleteRun(ctx, summary.RunID, run); err != nil {
			o.logger.Warn("failed to journal run completion", slog.String("error", err.Error()))
		}
	}

	o.logger.Info("batch complete",
		slog.String("run", summary.RunID),
		slog.Int("accounts", summary.Accounts),
		slog.Int("confirmed", summary.Confirmed),
		slog.Int("reverted", summary.Reverted),
		slog.Int("timed_out", summary.TimedOut),
		slog.Int("failed", summary.Failed),
	)

	return summary, results, nil
}

// launchJitter picks the stagger before the next dispatcher launch: uniform in
// [JitterMin, JitterMax], or the fixed fallback when no bounds are configured.
func (o *Orchestrator) launchJitter() time.Duration {
	if o.cfg.JitterMax <= 0 {
		return o.cfg.JitterFallback
	}
	span := o.cfg.JitterMax - o.cfg.JitterMin
	if span <= 0 {
		return o.cfg.JitterMin
	}
	return o.cfg.JitterMin + time.Duration(rand.Int64N(int64(span)+1))
}

func (o *Orchestrator) logBalanceSummary(accounts []*account.Account) {
	decimals := 18
	if o.cfg.Mode == types.ModeToken {
		decimals = o.cfg.TokenDecimals
	}
	for _, acc := range accounts {
		o.logger.Info("ready to dispatch",
			slog.String("address", acc.Address.Hex()),
			slog.String("balance", txbuilder.FormatUnits(acc.Balance, decimals)),
			slog.Uint64("nonce", acc.PeekNonce()),
		)
	}
}

// reportResult emits one account's outcome line. Called under the results
// mutex so output from concurrent dispatchers never interleaves.
func (o *Orchestrator) reportResult(result types.DispatchResult) {
	attrs := []any{
		slog.String("address", result.Address),
		slog.String("status", string(result.Status)),
		slog.Int("attempts", result.Attempts),
	}
	if result.TxHash != "" {
		attrs = append(attrs, slog.String("tx", result.TxHash))
	}
	if result.BlockNumber > 0 {
		attrs = append(attrs, slog.Uint64("block", result.BlockNumber))
	}
	if result.Error != "" {
		attrs = append(attrs, slog.String("error", result.Error))
	}

	if result.Status == types.StatusConfirmed {
		o.logger.Info("dispatch finished", attrs...)
	} else {
		o.logger.Warn("dispatch finished", attrs...)
	}
}

func newRunID() string {
	return "run-" + time.Now().UTC().Format("20060102-150405.000000000")
}
