package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/gateway-fm/batchsender/internal/rpc"
	"github.com/gateway-fm/batchsender/pkg/types"
)

// TrackResult is the terminal state of one submitted transaction.
type TrackResult struct {
	Status      types.DispatchStatus // confirmed, reverted, or timeout
	BlockNumber uint64
}

// ReceiptTracker polls the gateway for one transaction's receipt until it is
// included or the window elapses. Transient query errors are swallowed and
// treated as "not yet available"; the only bound is the overall timeout.
type ReceiptTracker struct {
	client       rpc.Client
	pollInterval time.Duration
	timeout      time.Duration
	heads        <-chan uint64 // optional early wakeups on new blocks
	logger       *slog.Logger
}

// NewReceiptTracker creates a tracker for one submitted transaction.
// heads may be nil; then the tracker relies on interval polling alone.
func NewReceiptTracker(client rpc.Client, pollInterval, timeout time.Duration, heads <-chan uint64, logger *slog.Logger) *ReceiptTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReceiptTracker{
		client:       client,
		pollInterval: pollInterval,
		timeout:      timeout,
		heads:        heads,
		logger:       logger,
	}
}

// Track blocks until the transaction reaches a terminal state. The first poll
// happens immediately, so an already-included transaction resolves without
// waiting a full interval.
func (t *ReceiptTracker) Track(ctx context.Context, txHash string) TrackResult {
	deadline := time.NewTimer(t.timeout)
	defer deadline.Stop()

	for {
		receipt, err := t.client.GetTransactionReceipt(ctx, txHash)
		if err != nil {
			t.logger.Debug("receipt query failed, will retry",
				slog.String("tx", txHash),
				slog.String("error", err.Error()),
			)
		} else if receipt != nil {
			if receipt.Status == 1 {
				return TrackResult{Status: types.StatusConfirmed, BlockNumber: receipt.BlockNumber}
			}
			return TrackResult{Status: types.StatusReverted, BlockNumber: receipt.BlockNumber}
		}

		select {
		case <-ctx.Done():
			return TrackResult{Status: types.StatusTimeout}
		case <-deadline.C:
			return TrackResult{Status: types.StatusTimeout}
		case <-time.After(t.pollInterval):
		case <-t.heads:
			// New block arrived; poll right away.
		}
	}
}
