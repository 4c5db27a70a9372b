package dispatch

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/batchsender/internal/account"
	"github.com/gateway-fm/batchsender/internal/txbuilder"
	"github.com/gateway-fm/batchsender/pkg/types"
)

// Well-known development keys (hardhat defaults).
const (
	devKey0 = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devKey1 = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	devKey2 = "5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a"
)

var dispatchRecipient = common.HexToAddress("0x9999999999999999999999999999999999999999")

func testAccount(t *testing.T, hexKey string, nonce uint64) *account.Account {
	t.Helper()
	acc, err := account.NewAccountFromHex(hexKey)
	if err != nil {
		t.Fatalf("NewAccountFromHex() error = %v", err)
	}
	acc.SetNonce(nonce)
	acc.Balance = big.NewInt(1_000_000_000_000_000_000)
	return acc
}

func testDispatcher(gw *mockGateway) *Dispatcher {
	return NewDispatcher(DispatcherConfig{
		Client:         gw,
		Builder:        txbuilder.NewNativeTransferBuilder(dispatchRecipient, big.NewInt(1), ""),
		ChainID:        big.NewInt(42069),
		GasLimit:       21000,
		GasTipCap:      big.NewInt(1_000_000_000),
		GasFeeCap:      big.NewInt(30_000_000_000),
		MaxAttempts:    3,
		Backoff:        Backoff{Kind: types.BackoffFixed, Base: time.Millisecond},
		ReceiptTimeout: 50 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
	})
}

func TestDispatcher_Confirmed(t *testing.T) {
	gw := newMockGateway()
	gw.setReceipt("0xhash1", receiptWith(1, 100))
	d := testDispatcher(gw)
	acc := testAccount(t, devKey0, 5)

	result := d.Run(context.Background(), acc)
	if result.Status != types.StatusConfirmed {
		t.Fatalf("Status = %s, want confirmed", result.Status)
	}
	if result.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", result.Attempts)
	}
	if result.Nonce != 5 {
		t.Errorf("Nonce = %d, want 5", result.Nonce)
	}
	if result.TxHash != "0xhash1" {
		t.Errorf("TxHash = %q, want 0xhash1", result.TxHash)
	}
	if result.BlockNumber != 100 {
		t.Errorf("BlockNumber = %d, want 100", result.BlockNumber)
	}
	// Inclusion consumed the nonce.
	if acc.PeekNonce() != 6 {
		t.Errorf("account nonce = %d, want 6", acc.PeekNonce())
	}
}

func TestDispatcher_RevertedAdvancesNonce(t *testing.T) {
	gw := newMockGateway()
	gw.setReceipt("0xhash1", receiptWith(0, 101))
	d := testDispatcher(gw)
	acc := testAccount(t, devKey0, 2)

	result := d.Run(context.Background(), acc)
	if result.Status != types.StatusReverted {
		t.Fatalf("Status = %s, want reverted", result.Status)
	}
	// A reverted transaction was still included on chain.
	if acc.PeekNonce() != 3 {
		t.Errorf("account nonce = %d, want 3", acc.PeekNonce())
	}
	if gw.sentCount() != 1 {
		t.Errorf("sent %d transactions, want 1 (no retry after inclusion)", gw.sentCount())
	}
}

func TestDispatcher_SubmitErrorRetries(t *testing.T) {
	gw := newMockGateway()
	gw.sendFn = func(attempt int) (string, error) {
		if attempt == 1 {
			return "", errors.New("connection reset")
		}
		return "0xhash-ok", nil
	}
	gw.setReceipt("0xhash-ok", receiptWith(1, 200))
	d := testDispatcher(gw)
	acc := testAccount(t, devKey0, 0)

	result := d.Run(context.Background(), acc)
	if result.Status != types.StatusConfirmed {
		t.Fatalf("Status = %s, want confirmed after retry", result.Status)
	}
	if result.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", result.Attempts)
	}
}

func TestDispatcher_SubmitErrorExhausts(t *testing.T) {
	gw := newMockGateway()
	gw.sendErr = errors.New("mempool full")
	d := testDispatcher(gw)
	acc := testAccount(t, devKey0, 0)

	result := d.Run(context.Background(), acc)
	if result.Status != types.StatusSubmitFailed {
		t.Fatalf("Status = %s, want submit_failed", result.Status)
	}
	if result.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}
	if result.Error == "" {
		t.Error("terminal result carries no error reason")
	}
	// Never included, nonce must not advance.
	if acc.PeekNonce() != 0 {
		t.Errorf("account nonce = %d, want 0", acc.PeekNonce())
	}
}

func TestDispatcher_TimeoutResyncsNonce(t *testing.T) {
	gw := newMockGateway()
	acc := testAccount(t, devKey0, 4)
	// The first transaction never gets a receipt, but it silently lands:
	// the chain reports the consumed nonce during resync.
	gw.mu.Lock()
	gw.nonces[acc.Address.Hex()] = 5
	gw.mu.Unlock()
	gw.setReceipt("0xhash2", receiptWith(1, 300))

	d := testDispatcher(gw)
	result := d.Run(context.Background(), acc)
	if result.Status != types.StatusConfirmed {
		t.Fatalf("Status = %s, want confirmed on retry", result.Status)
	}
	if result.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", result.Attempts)
	}
	// The retry must have used the resynced nonce, not the stale one.
	if result.Nonce != 5 {
		t.Errorf("retry nonce = %d, want 5 (resynced from chain)", result.Nonce)
	}
	if acc.PeekNonce() != 6 {
		t.Errorf("account nonce = %d, want 6", acc.PeekNonce())
	}
}

func TestDispatcher_TimeoutExhausts(t *testing.T) {
	gw := newMockGateway()
	d := testDispatcher(gw)
	acc := testAccount(t, devKey0, 0)

	result := d.Run(context.Background(), acc)
	if result.Status != types.StatusTimeout {
		t.Fatalf("Status = %s, want timeout", result.Status)
	}
	if result.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}
	if gw.sentCount() != 3 {
		t.Errorf("sent %d transactions, want 3", gw.sentCount())
	}
}

func TestDispatcher_EstimatesGasWhenUnset(t *testing.T) {
	gw := newMockGateway()
	gw.setReceipt("0xhash1", receiptWith(1, 1))

	cfg := testDispatcher(gw).cfg
	cfg.GasLimit = 0
	d := NewDispatcher(cfg)
	acc := testAccount(t, devKey0, 0)

	result := d.Run(context.Background(), acc)
	if result.Status != types.StatusConfirmed {
		t.Fatalf("Status = %s, want confirmed with estimated gas", result.Status)
	}
}
